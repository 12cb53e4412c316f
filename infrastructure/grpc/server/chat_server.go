package server

import (
	"anon-chat/auth"
	"anon-chat/contract"
	"anon-chat/domain"
	"anon-chat/errors"
	pb "anon-chat/infrastructure/grpc/chatpb"
	"anon-chat/services"
	"anon-chat/sink"
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"google.golang.org/grpc"
)

type ChatServer struct {
	pb.UnimplementedChatServiceServer
	log                  *slog.Logger
	chatService          services.IChatService
	issuer               *auth.Issuer
	policy               contract.ContentPolicy
	connectionBufferSize int
}

func NewChatServer(log *slog.Logger, chatService services.IChatService, issuer *auth.Issuer,
	policy contract.ContentPolicy, connectionBufferSize int) *ChatServer {
	return &ChatServer{
		log:                  log,
		chatService:          chatService,
		issuer:               issuer,
		policy:               policy,
		connectionBufferSize: connectionBufferSize,
	}
}

// Login hands out a fresh anonymous identity.
func (s *ChatServer) Login(_ context.Context, _ *pb.LoginRequest) (*pb.LoginResponse, error) {
	token, userID, expiresAt, err := s.issuer.Issue()
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	s.log.Debug("Anonymous identity issued", "user_id", userID)
	return &pb.LoginResponse{Token: token, ExpiresAt: expiresAt}, nil
}

// Connect starts the session of the caller and pushes its notifications
// until the client goes away. The stream sink is the user's destination.
func (s *ChatServer) Connect(_ *pb.ConnectRequest, stream grpc.ServerStreamingServer[pb.Event]) error {
	ctx := stream.Context()
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return errors.MapToGRPCError(err)
	}

	streamSink := sink.NewStreamSink(s.log, s.policy, s.connectionBufferSize)
	s.chatService.Start(ctx, userID, streamSink)
	defer s.chatService.Disconnect(context.WithoutCancel(ctx), userID, streamSink)
	defer streamSink.Close()

	if err := stream.Send(&pb.Event{ID: uuid.NewString(), Kind: pb.EventSessionStarted, At: time.Now().UTC()}); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Client disconnected", "user_id", userID)
			return nil
		case n := <-streamSink.Events:
			if err := stream.Send(toEvent(n)); err != nil {
				s.log.Error("Failed to push event to stream", "user_id", userID, "kind", n.Kind, "error", err)
				return err
			}
		}
	}
}

// Search blocks until a partner is found, the search is cancelled or the call ends.
func (s *ChatServer) Search(ctx context.Context, _ *pb.SearchRequest) (*pb.SearchResponse, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	match, err := s.chatService.BeginSearch(ctx, userID)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &pb.SearchResponse{
		ConversationID: match.ConversationID.String(),
		Discovered:     match.Discovered,
		At:             match.At,
	}, nil
}

func (s *ChatServer) CancelSearch(ctx context.Context, _ *pb.CancelSearchRequest) (*pb.CancelSearchResponse, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	if err := s.chatService.CancelSearch(ctx, userID); err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &pb.CancelSearchResponse{}, nil
}

func (s *ChatServer) EndConversation(ctx context.Context, _ *pb.EndConversationRequest) (*pb.EndConversationResponse, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	ending, err := s.chatService.EndConversation(ctx, userID)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &pb.EndConversationResponse{
		ConversationID: ending.ConversationID.String(),
		DurationMs:     ending.Duration().Milliseconds(),
	}, nil
}

// Send relays the payload to the partner of the caller. Like every other
// message, it reaches the partner through its Connect stream.
func (s *ChatServer) Send(ctx context.Context, req *pb.SendRequest) (*pb.SendResponse, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	if err := s.chatService.SendContent(ctx, userID, toPayload(req.Payload)); err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &pb.SendResponse{}, nil
}

func (s *ChatServer) Stats(_ context.Context, _ *pb.StatsRequest) (*pb.StatsResponse, error) {
	stats := s.chatService.Stats()
	return &pb.StatsResponse{
		KnownUsers:    stats.KnownUsers,
		Searching:     stats.Searching,
		Paired:        stats.Paired,
		Conversations: stats.Conversations,
		Sessions:      stats.Sessions,
	}, nil
}

func toPayload(p pb.Payload) domain.Payload {
	return domain.Payload{
		Kind:    domain.ContentKind(p.Kind),
		Text:    p.Text,
		Data:    p.Data,
		MIME:    p.MIME,
		Caption: p.Caption,
	}
}

func toEvent(n domain.Notification) *pb.Event {
	evt := &pb.Event{
		ID:             n.ID.String(),
		Kind:           string(n.Kind),
		ConversationID: n.ConversationID.String(),
		At:             n.At,
	}
	if n.Payload != nil {
		evt.Payload = lo.ToPtr(pb.Payload{
			Kind:    string(n.Payload.Kind),
			Text:    n.Payload.Text,
			Data:    n.Payload.Data,
			MIME:    n.Payload.MIME,
			Caption: n.Payload.Caption,
		})
	}
	return evt
}
