package main

import (
	"anon-chat/auth"
	"anon-chat/content"
	pb "anon-chat/infrastructure/grpc/chatpb"
	"anon-chat/infrastructure/grpc/server"
	"anon-chat/internal"
	"anon-chat/runtime"
	"anon-chat/runtime/workers"
	"anon-chat/services"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	grpc3 "github.com/mama165/sdk-go/grpc"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component, serves until a signal or a server failure,
// then shuts down gracefully. Deferred cleanups run before the exit code is returned.
func run() (int, error) {
	// 1. Configuration & Logger
	config, err := internal.LoadConfig()
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	issuer, err := auth.NewIssuer(config.AuthSecret, config.AuthTokenDuration)
	if err != nil {
		return exitConfig, err
	}

	// 2. Core
	registry := runtime.NewRegistry()
	dispatcher := runtime.NewDispatcher(logger, registry, config.DeliveryTimeout)
	matchmaker := runtime.NewMatchmaker(logger, dispatcher)
	relay := runtime.NewRelay(logger, matchmaker, registry, dispatcher, config.DeliveryTimeout)
	chatService := services.NewChatService(logger, registry, matchmaker, relay)
	policy := content.NewPolicy(config.MaxTextLength, config.MaxMediaBytes, config.MediaTypes())

	// 3. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Background workers
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(workers.NewHeartbeatWorker(logger, matchmaker, registry, config.HeartbeatInterval))
	supervisorDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supervisorDone)
	}()

	// 5. gRPC Server Setup
	listener, err := net.Listen("tcp", config.Address())
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", config.Address(), err)
	}

	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpc3.UnaryLoggingInterceptor(logger),
			auth.UnaryInterceptor(issuer),
		),
		grpc.ChainStreamInterceptor(auth.StreamInterceptor(issuer)),
	)
	pb.RegisterChatServiceServer(s, server.NewChatServer(logger, chatService, issuer, policy, config.ConnectionBufferSize))

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting gRPC server", "address", config.Address(), "at", time.Now().UTC())
		for serviceName := range s.GetServiceInfo() {
			logger.Debug("gRPC exposed services", "name", serviceName)
		}
		if err := s.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 6. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		sup.Stop()
		return exitRuntime, err
	}

	// 7. Graceful shutdown, bounded: Connect streams never end on their own.
	logger.Info("Shutting down gracefully...")
	stopped := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		s.Stop()
	}
	sup.Stop()
	<-supervisorDone
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}
