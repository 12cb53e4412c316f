package main

import (
	"anon-chat/auth"
	"anon-chat/content"
	"anon-chat/domain"
	pb "anon-chat/infrastructure/grpc/chatpb"
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress string `envconfig:"CHAT_SERVER_ADDR" default:"localhost:8080"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"WARN"`
	Colours       bool   `envconfig:"CHAT_COLOURS" default:"true"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Configuration
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)
	color.Enable = config.Colours

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connection and anonymous identity
	conn, err := grpc.NewClient(config.ServerAddress, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to server at %s: %w", config.ServerAddress, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()

	client := pb.NewChatServiceClient(conn)
	login, err := client.Login(ctx, &pb.LoginRequest{})
	if err != nil {
		return exitRuntime, fmt.Errorf("login failed: %w", err)
	}
	session := &session{
		client: client,
		creds:  grpc.PerRPCCredentials(auth.BearerCredentials{Token: login.Token}),
	}

	// 3. Event stream
	stream, err := client.Connect(ctx, &pb.ConnectRequest{}, session.creds)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open stream: %w", err)
	}
	first, err := stream.Recv()
	if err != nil {
		return exitRuntime, fmt.Errorf("session did not start: %w", err)
	}
	if first.Kind != pb.EventSessionStarted {
		return exitRuntime, fmt.Errorf("unexpected first event %q", first.Kind)
	}
	color.Green.Printf(">>> Connected to %s. Type /help for commands.\n", config.ServerAddress)

	streamErr := make(chan error, 1)
	go func() {
		for {
			evt, err := stream.Recv()
			if err != nil {
				streamErr <- err
				return
			}
			printEvent(evt)
		}
	}()

	// 4. Commands typed by the user
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return exitOK, nil
		case err := <-streamErr:
			if ctx.Err() != nil || err == io.EOF {
				return exitOK, nil
			}
			return exitRuntime, fmt.Errorf("stream error: %w", err)
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			cmd := parseCommand(line)
			if cmd.name == commandQuit {
				return exitOK, nil
			}
			session.execute(ctx, cmd)
		}
	}
}

type session struct {
	client pb.ChatServiceClient
	creds  grpc.CallOption
}

func (s *session) execute(ctx context.Context, cmd command) {
	switch cmd.name {
	case commandNone:
	case commandHelp:
		color.Gray.Println(help)
	case commandSearch:
		color.Gray.Println("Looking for a partner...")
		go func() {
			if _, err := s.client.Search(ctx, &pb.SearchRequest{}, s.creds); err != nil {
				printError(err)
			}
		}()
	case commandCancel:
		if _, err := s.client.CancelSearch(ctx, &pb.CancelSearchRequest{}, s.creds); err != nil {
			printError(err)
			return
		}
		color.Gray.Println("Search cancelled.")
	case commandEnd:
		if _, err := s.client.EndConversation(ctx, &pb.EndConversationRequest{}, s.creds); err != nil {
			printError(err)
		}
	case commandStats:
		stats, err := s.client.Stats(ctx, &pb.StatsRequest{}, s.creds)
		if err != nil {
			printError(err)
			return
		}
		color.Gray.Printf("%d connected, %d searching, %d conversations\n",
			stats.Sessions, stats.Searching, stats.Conversations)
	case commandFile:
		data, err := os.ReadFile(cmd.arg)
		if err != nil {
			printError(err)
			return
		}
		s.send(ctx, pb.Payload{Kind: string(domain.ContentMedia), Data: data, MIME: content.Detect(data)})
	case commandText:
		s.send(ctx, pb.Payload{Kind: string(domain.ContentText), Text: cmd.arg})
	default:
		color.Red.Printf("Unknown command %q, type /help\n", cmd.raw)
	}
}

func (s *session) send(ctx context.Context, payload pb.Payload) {
	if _, err := s.client.Send(ctx, &pb.SendRequest{Payload: payload}, s.creds); err != nil {
		printError(err)
	}
}

func printEvent(evt *pb.Event) {
	at := evt.At.Local().Format(time.TimeOnly)
	switch domain.NotificationKind(evt.Kind) {
	case domain.KindMatchFound:
		color.Green.Printf("[%s] Partner found, say hi! (/end to leave)\n", at)
	case domain.KindConversationEnded:
		color.Yellow.Printf("[%s] Your partner left the conversation. /search to find someone else.\n", at)
	case domain.KindEndConfirmed:
		color.Yellow.Printf("[%s] You left the conversation.\n", at)
	case domain.KindUnsupportedContent:
		color.Red.Printf("[%s] Your partner cannot receive this content.\n", at)
	case domain.KindContent:
		if evt.Payload == nil {
			return
		}
		if evt.Payload.Kind == string(domain.ContentMedia) {
			color.Cyan.Printf("[%s] partner sent %s (%d bytes) %s\n", at, evt.Payload.MIME, len(evt.Payload.Data), evt.Payload.Caption)
			return
		}
		color.Cyan.Printf("[%s] partner: %s\n", at, evt.Payload.Text)
	}
}

func printError(err error) {
	if st, ok := status.FromError(err); ok {
		color.Red.Printf("! %s\n", st.Message())
		return
	}
	color.Red.Printf("! %v\n", err)
}

const help = `/search       find a partner
/cancel       stop searching
/end          leave the conversation
/file <path>  send a picture
/stats        show server stats
/quit         exit
anything else is sent to your partner`

type commandName int

const (
	commandNone commandName = iota
	commandUnknown
	commandHelp
	commandSearch
	commandCancel
	commandEnd
	commandFile
	commandStats
	commandQuit
	commandText
)

type command struct {
	name commandName
	arg  string
	raw  string
}

var commands = map[string]commandName{
	"/help":   commandHelp,
	"/search": commandSearch,
	"/cancel": commandCancel,
	"/end":    commandEnd,
	"/file":   commandFile,
	"/stats":  commandStats,
	"/quit":   commandQuit,
}

// parseCommand classifies a typed line. Lines starting with "//" are sent as text without the first slash.
func parseCommand(line string) command {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return command{name: commandNone, raw: line}
	case strings.HasPrefix(trimmed, "//"):
		return command{name: commandText, arg: trimmed[1:], raw: line}
	case !strings.HasPrefix(trimmed, "/"):
		return command{name: commandText, arg: line, raw: line}
	}

	head, arg, _ := strings.Cut(trimmed, " ")
	name, ok := commands[strings.ToLower(head)]
	if !ok {
		return command{name: commandUnknown, raw: head}
	}
	if name == commandFile && strings.TrimSpace(arg) == "" {
		return command{name: commandUnknown, raw: trimmed}
	}
	return command{name: name, arg: strings.TrimSpace(arg), raw: line}
}
