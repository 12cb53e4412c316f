package runtime

import (
	"anon-chat/domain"
	"anon-chat/errors"
	"anon-chat/mocks"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestRelay_Forwards_Content_Unchanged(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	const alice, bob domain.UserID = 1, 2
	m, notifier := newTestMatchmaker(alice, bob)
	registry := NewRegistry()
	bobDestination := mocks.NewMockDestination(ctrl)
	registry.Register(alice, mocks.NewMockDestination(ctrl))
	registry.Register(bob, bobDestination)
	relay := NewRelay(logs.GetLoggerFromLevel(slog.LevelDebug), m, registry, notifier, time.Second)

	// Given Alice and Bob are paired
	pairUp(t, m, alice, bob)
	before, err := m.Partner(alice)
	req.NoError(err)
	notified := notifier.Len()

	// Then Bob's destination receives "hi" as it was sent
	payload := domain.Payload{Kind: domain.ContentText, Text: "hi"}
	bobDestination.EXPECT().
		Deliver(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, n domain.Notification) error {
			req.Equal(bob, n.To)
			req.Equal(domain.KindContent, n.Kind)
			req.Equal(before.ConversationID, n.ConversationID)
			req.Equal(payload, *n.Payload)
			return nil
		})

	// When Alice sends a content message
	err = relay.Relay(context.Background(), alice, payload)

	// And the pair table is left untouched
	req.NoError(err)
	after, err := m.Partner(alice)
	req.NoError(err)
	req.Equal(before, after)
	req.Equal(notified, notifier.Len())
	req.NoError(m.Check())
}

func TestRelay_Unsupported_Content_Is_Reported_To_Sender_Only(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	const alice, bob domain.UserID = 1, 2
	m, notifier := newTestMatchmaker(alice, bob)
	registry := NewRegistry()
	bobDestination := mocks.NewMockDestination(ctrl)
	registry.Register(bob, bobDestination)
	relay := NewRelay(logs.GetLoggerFromLevel(slog.LevelDebug), m, registry, notifier, time.Second)

	// Given Alice and Bob are paired
	pairUp(t, m, alice, bob)

	// And Bob's destination refuses media
	bobDestination.EXPECT().
		Deliver(gomock.Any(), gomock.Any()).
		Return(fmt.Errorf("%w: sticker", errors.ErrUnsupportedContent))

	// When Alice sends a sticker
	err := relay.Relay(context.Background(), alice, domain.Payload{Kind: domain.ContentMedia, Data: []byte("GIF89a")})

	// Then Alice alone is told, the conversation goes on
	req.ErrorIs(err, errors.ErrUnsupportedContent)
	req.Equal([]domain.NotificationKind{domain.KindMatchFound, domain.KindUnsupportedContent}, notifier.For(alice))
	req.Equal([]domain.NotificationKind{domain.KindMatchFound}, notifier.For(bob))
	for _, id := range []domain.UserID{alice, bob} {
		state, _ := m.State(id)
		req.Equal(domain.Paired, state)
	}
}

func TestRelay_Rejects_Sender_Not_Paired(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	const alice, bob domain.UserID = 1, 2
	m, notifier := newTestMatchmaker(alice, bob)
	registry := NewRegistry()
	bobDestination := mocks.NewMockDestination(ctrl)
	registry.Register(bob, bobDestination)
	relay := NewRelay(logs.GetLoggerFromLevel(slog.LevelDebug), m, registry, notifier, time.Second)

	// Given Alice is idle, nothing may be delivered
	bobDestination.EXPECT().Deliver(gomock.Any(), gomock.Any()).Times(0)

	// When Alice sends a message anyway
	err := relay.Relay(context.Background(), alice, domain.Payload{Kind: domain.ContentText, Text: "hello?"})

	// Then the message is rejected and nobody is notified
	req.ErrorIs(err, errors.ErrInvalidTransition)
	req.Zero(notifier.Len())
}

func TestRelay_Rejects_Unknown_Sender(t *testing.T) {
	req := require.New(t)
	m, notifier := newTestMatchmaker()
	relay := NewRelay(logs.GetLoggerFromLevel(slog.LevelDebug), m, NewRegistry(), notifier, time.Second)

	err := relay.Relay(context.Background(), 42, domain.Payload{Kind: domain.ContentText, Text: "hi"})

	req.ErrorIs(err, errors.ErrUnknownUser)
}

func TestRelay_Wraps_Delivery_Failure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	const alice, bob domain.UserID = 1, 2
	m, notifier := newTestMatchmaker(alice, bob)
	registry := NewRegistry()
	bobDestination := mocks.NewMockDestination(ctrl)
	registry.Register(bob, bobDestination)
	relay := NewRelay(logs.GetLoggerFromLevel(slog.LevelDebug), m, registry, notifier, time.Second)
	pairUp(t, m, alice, bob)

	// Given Bob's stream has been closed
	bobDestination.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(errors.ErrDestinationClosed)

	// When Alice talks
	err := relay.Relay(context.Background(), alice, domain.Payload{Kind: domain.ContentText, Text: "hi"})

	// Then the failure is surfaced without any notice
	req.ErrorIs(err, errors.ErrDestinationClosed)
	req.Equal([]domain.NotificationKind{domain.KindMatchFound}, notifier.For(alice))
}
