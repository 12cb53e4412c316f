package workers

import (
	"anon-chat/contract"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// ProcessStats is a sample of the server process.
type ProcessStats struct {
	RSS        uint64
	CPUPercent float64
	Status     string
}

// HeartbeatWorker periodically reports the matchmaking state and the
// resources of the process, and checks the pool and pair table invariants.
type HeartbeatWorker struct {
	log        *slog.Logger
	matchmaker contract.IMatchmaker
	registry   contract.ISessionRegistry
	interval   time.Duration
	sample     func() (ProcessStats, error)
}

func NewHeartbeatWorker(log *slog.Logger, matchmaker contract.IMatchmaker,
	registry contract.ISessionRegistry, interval time.Duration) *HeartbeatWorker {
	return &HeartbeatWorker{
		log:        log,
		matchmaker: matchmaker,
		registry:   registry,
		interval:   interval,
	}
}

// Run ticks until ctx is done. Failing to sample the process is not fatal.
func (w *HeartbeatWorker) Run(ctx context.Context) error {
	if w.sample == nil {
		p, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			return err
		}
		w.sample = func() (ProcessStats, error) { return selfStats(p) }
	}

	w.log.Info("Starting heartbeat worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.beat()
		}
	}
}

func (w *HeartbeatWorker) beat() {
	stats := w.matchmaker.Stats()
	attrs := []any{
		"known_users", stats.KnownUsers,
		"searching", stats.Searching,
		"paired", stats.Paired,
		"conversations", stats.Conversations,
		"sessions", w.registry.Len(),
	}

	if ps, err := w.sample(); err != nil {
		w.log.Warn("Failed to collect self stats", "error", err)
	} else {
		attrs = append(attrs, "rss_bytes", ps.RSS, "cpu_percent", ps.CPUPercent, "status", ps.Status)
	}
	w.log.Info("Heartbeat", attrs...)

	if err := w.matchmaker.Check(); err != nil {
		w.log.Error("Matchmaking invariant broken", "error", err)
	}
}

// selfStats retrieves memory, CPU and OS status of the given process.
func selfStats(p *process.Process) (ProcessStats, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return ProcessStats{}, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return ProcessStats{}, err
	}
	status, err := p.Status()
	if err != nil {
		return ProcessStats{}, err
	}
	return ProcessStats{RSS: memInfo.RSS, CPUPercent: cpuPercent, Status: status}, nil
}
