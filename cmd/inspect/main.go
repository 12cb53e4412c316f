package main

import (
	"anon-chat/auth"
	pb "anon-chat/infrastructure/grpc/chatpb"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type Config struct {
	ServerAddress string        `envconfig:"CHAT_SERVER_ADDR" default:"localhost:8080"`
	Timeout       time.Duration `envconfig:"INSPECT_TIMEOUT" default:"5s"`
}

func main() {
	every := flag.Duration("every", 0, "Refresh interval, 0 prints once")
	flag.Parse()

	var config Config
	if err := envconfig.Process("", &config); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}
	if err := run(config, *every); err != nil {
		fmt.Fprintf(os.Stderr, "inspect error: %v\n", err)
		os.Exit(1)
	}
}

func run(config Config, every time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := grpc.NewClient(config.ServerAddress, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("could not connect to server at %s: %w", config.ServerAddress, err)
	}
	defer conn.Close()
	client := pb.NewChatServiceClient(conn)

	loginCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()
	login, err := client.Login(loginCtx, &pb.LoginRequest{})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	creds := grpc.PerRPCCredentials(auth.BearerCredentials{Token: login.Token})

	for {
		callCtx, cancel := context.WithTimeout(ctx, config.Timeout)
		stats, err := client.Stats(callCtx, &pb.StatsRequest{}, creds)
		cancel()
		if err != nil {
			return fmt.Errorf("stats failed: %w", err)
		}
		render(os.Stdout, config.ServerAddress, time.Now(), stats)

		if every <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(every):
		}
	}
}

func render(w io.Writer, address string, at time.Time, stats *pb.StatsResponse) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Server", "At", "Sessions", "Known", "Searching", "Paired", "Conversations"})
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.Append([]string{
		address,
		at.Format(time.TimeOnly),
		strconv.Itoa(stats.Sessions),
		strconv.Itoa(stats.KnownUsers),
		strconv.Itoa(stats.Searching),
		strconv.Itoa(stats.Paired),
		strconv.Itoa(stats.Conversations),
	})
	table.Render()
}
