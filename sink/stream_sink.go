package sink

import (
	"anon-chat/contract"
	"anon-chat/domain"
	"anon-chat/errors"
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// StreamSink is the destination of a user connected through a server stream.
// Deliver hands notifications over to the stream handler, which drains Events.
type StreamSink struct {
	ID     uuid.UUID
	Events chan domain.Notification

	log       *slog.Logger
	policy    contract.ContentPolicy
	closed    chan struct{}
	closeOnce sync.Once
}

func NewStreamSink(log *slog.Logger, policy contract.ContentPolicy, bufferSize int) *StreamSink {
	return &StreamSink{
		ID:     uuid.New(),
		Events: make(chan domain.Notification, bufferSize),
		log:    log,
		policy: policy,
		closed: make(chan struct{}),
	}
}

// Deliver refuses content the policy cannot forward, then waits for room in
// the buffer until ctx is done or the stream goes away.
func (s *StreamSink) Deliver(ctx context.Context, n domain.Notification) error {
	if n.Kind == domain.KindContent {
		if n.Payload == nil {
			return errors.ErrUnsupportedContent
		}
		if err := s.policy.Check(*n.Payload); err != nil {
			return err
		}
	}

	select {
	case <-s.closed:
		return errors.ErrDestinationClosed
	default:
	}

	select {
	case s.Events <- n:
		return nil
	case <-s.closed:
		return errors.ErrDestinationClosed
	case <-ctx.Done():
		s.log.Warn("Stream is lagging, notification dropped", "sink_id", s.ID, "user_id", n.To, "kind", n.Kind)
		return ctx.Err()
	}
}

// Close marks the stream as gone. Pending and future deliveries fail fast.
func (s *StreamSink) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

func (s *StreamSink) Done() <-chan struct{} {
	return s.closed
}
