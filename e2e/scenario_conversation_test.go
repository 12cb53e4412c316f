package e2e

import (
	"anon-chat/domain"
	pb "anon-chat/infrastructure/grpc/chatpb"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type testConversationSuite struct {
	BaseGrpcSuite
}

func TestConversationSuite(t *testing.T) {
	suite.Run(t, &testConversationSuite{})
}

func (s *testConversationSuite) TestFullConversationFlow() {
	s.WithParticipant("Alice joins", func(ctx context.Context, alice *Participant) {
		s.WithParticipant("Bob joins", func(_ context.Context, bob *Participant) {
			// --- STEP 1: MATCHMAKING ---
			s.Run("Step 1: Alice waits, Bob finds her", func() {
				aliceSearch := make(chan error, 1)
				go func() {
					_, err := alice.Client.Search(ctx, &pb.SearchRequest{}, alice.Creds)
					aliceSearch <- err
				}()
				s.Require().Eventually(func() bool {
					stats, err := bob.Client.Stats(ctx, &pb.StatsRequest{}, bob.Creds)
					return err == nil && stats.Searching >= 1
				}, 5*time.Second, 20*time.Millisecond)

				res, err := bob.Client.Search(ctx, &pb.SearchRequest{}, bob.Creds)
				s.Require().NoError(err)
				s.Require().True(res.Discovered)
				s.Require().NoError(<-aliceSearch)
				s.Require().Equal(string(domain.KindMatchFound), s.Next(alice).Kind)
				s.Require().Equal(string(domain.KindMatchFound), s.Next(bob).Kind)
			})

			// --- STEP 2: RELAY ---
			s.Run("Step 2: Messages go through unchanged", func() {
				_, err := alice.Client.Send(ctx, &pb.SendRequest{Payload: pb.Payload{Kind: "text", Text: "hi"}}, alice.Creds)
				s.Require().NoError(err)
				evt := s.Next(bob)
				s.Require().Equal(string(domain.KindContent), evt.Kind)
				s.Require().Equal("hi", evt.Payload.Text)
			})

			// --- STEP 3: TEARDOWN ---
			s.Run("Step 3: Bob leaves", func() {
				_, err := bob.Client.EndConversation(ctx, &pb.EndConversationRequest{}, bob.Creds)
				s.Require().NoError(err)
				s.Require().Equal(string(domain.KindConversationEnded), s.Next(alice).Kind)
				s.Require().Equal(string(domain.KindEndConfirmed), s.Next(bob).Kind)

				_, err = alice.Client.Send(ctx, &pb.SendRequest{Payload: pb.Payload{Kind: "text", Text: "still there?"}}, alice.Creds)
				s.Require().Equal(codes.FailedPrecondition, status.Code(err))
			})
		})
	})
}
