package services

import (
	"anon-chat/contract"
	"anon-chat/domain"
	"context"
	"log/slog"
)

// IChatService exposes one operation per inbound event of a chat session.
type IChatService interface {
	Start(ctx context.Context, userID domain.UserID, destination contract.Destination)
	BeginSearch(ctx context.Context, userID domain.UserID) (domain.Match, error)
	CancelSearch(ctx context.Context, userID domain.UserID) error
	EndConversation(ctx context.Context, userID domain.UserID) (domain.Ending, error)
	SendContent(ctx context.Context, userID domain.UserID, payload domain.Payload) error
	Disconnect(ctx context.Context, userID domain.UserID, destination contract.Destination)
	Stats() domain.Stats
}

type ChatService struct {
	lifecycle  *userLocks
	log        *slog.Logger
	registry   contract.ISessionRegistry
	matchmaker contract.IMatchmaker
	relay      contract.IRelay
}

func NewChatService(log *slog.Logger, registry contract.ISessionRegistry,
	matchmaker contract.IMatchmaker, relay contract.IRelay) *ChatService {
	return &ChatService{lifecycle: newUserLocks(), log: log, registry: registry, matchmaker: matchmaker, relay: relay}
}

// Start registers the destination of the user and puts it back in Idle.
// A search or a conversation left over by a previous session is unwound first.
func (s *ChatService) Start(ctx context.Context, userID domain.UserID, destination contract.Destination) {
	defer s.lifecycle.lock(userID)()

	s.registry.Register(userID, destination)
	s.matchmaker.Reset(ctx, userID)
	s.log.Info("Session started", "user_id", userID)
}

func (s *ChatService) BeginSearch(ctx context.Context, userID domain.UserID) (domain.Match, error) {
	return s.matchmaker.BeginSearch(ctx, userID)
}

func (s *ChatService) CancelSearch(_ context.Context, userID domain.UserID) error {
	return s.matchmaker.CancelSearch(userID)
}

func (s *ChatService) EndConversation(ctx context.Context, userID domain.UserID) (domain.Ending, error) {
	return s.matchmaker.EndConversation(ctx, userID)
}

func (s *ChatService) SendContent(ctx context.Context, userID domain.UserID, payload domain.Payload) error {
	return s.relay.Relay(ctx, userID, payload)
}

// Disconnect unwinds the user when the given destination is still the registered one.
// A destination replaced by a newer session is ignored.
func (s *ChatService) Disconnect(ctx context.Context, userID domain.UserID, destination contract.Destination) {
	defer s.lifecycle.lock(userID)()

	current, err := s.registry.Resolve(userID)
	if err != nil || current != destination {
		s.log.Debug("Stale session closed", "user_id", userID)
		return
	}
	s.matchmaker.Reset(ctx, userID)
	s.log.Info("Session closed", "user_id", userID)
}

func (s *ChatService) Stats() domain.Stats {
	stats := s.matchmaker.Stats()
	stats.Sessions = s.registry.Len()
	return stats
}
