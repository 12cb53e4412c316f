package e2e

import (
	"anon-chat/auth"
	pb "anon-chat/infrastructure/grpc/chatpb"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

type BaseGrpcSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseGrpcSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ServerAddr == "" {
		s.T().Skip("E2E_SERVER_ADDR is not set")
	}
}

// GrpcConn initializes a gRPC connection logging every unary call
func (s *BaseGrpcSuite) GrpcConn(t *testing.T, name string) *grpc.ClientConn {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)

	conn, err := grpc.NewClient(s.Config.ServerAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			start := time.Now()
			err := invoker(ctx, method, req, reply, cc, opts...)

			logBuilder := strings.Builder{}
			fmt.Fprintf(&logBuilder, "GRPC %s [%s] in %v", method, status.Code(err), time.Since(start))

			if s.Config.DebugJSON {
				fmt.Fprintln(&logBuilder, "\nREQUEST:")
				fmt.Fprintln(&logBuilder, indent(req))
				if err != nil {
					fmt.Fprintln(&logBuilder, "ERROR:", err)
				} else {
					fmt.Fprintln(&logBuilder, "RESPONSE:")
					fmt.Fprintln(&logBuilder, indent(reply))
				}
			}
			t.Log(logBuilder.String())
			return err
		}),
	)
	s.Require().NoError(err, "Failed to connect to gRPC server at "+s.Config.ServerAddr)
	return conn
}

// Participant is an anonymous user with an open event stream.
type Participant struct {
	Client pb.ChatServiceClient
	Creds  grpc.CallOption
	Events chan *pb.Event
}

// WithParticipant logs a new anonymous user in, opens its stream and runs fn.
func (s *BaseGrpcSuite) WithParticipant(name string, fn func(ctx context.Context, p *Participant)) {
	conn := s.GrpcConn(s.T(), name)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := pb.NewChatServiceClient(conn)
	login, err := client.Login(ctx, &pb.LoginRequest{})
	s.Require().NoError(err)
	p := &Participant{
		Client: client,
		Creds:  grpc.PerRPCCredentials(auth.BearerCredentials{Token: login.Token}),
		Events: make(chan *pb.Event, 32),
	}

	stream, err := client.Connect(ctx, &pb.ConnectRequest{}, p.Creds)
	s.Require().NoError(err)
	go func() {
		defer close(p.Events)
		for {
			evt, err := stream.Recv()
			if err != nil {
				return
			}
			p.Events <- evt
		}
	}()
	s.Require().Equal(pb.EventSessionStarted, s.Next(p).Kind)

	fn(ctx, p)
}

// Next waits for the next event of the participant.
func (s *BaseGrpcSuite) Next(p *Participant) *pb.Event {
	select {
	case evt, ok := <-p.Events:
		s.Require().True(ok, "stream closed")
		return evt
	case <-time.After(5 * time.Second):
		s.Require().Fail("no event received")
		return nil
	}
}

func indent(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}
