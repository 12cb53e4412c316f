package runtime

import (
	"anon-chat/contract"
	"anon-chat/domain"
	"anon-chat/errors"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"
)

// Relay forwards content from a paired user to its partner, unchanged.
type Relay struct {
	log             *slog.Logger
	matchmaker      contract.IMatchmaker
	registry        contract.ISessionRegistry
	notifier        contract.Notifier
	deliveryTimeout time.Duration
	now             func() time.Time
}

func NewRelay(log *slog.Logger, matchmaker contract.IMatchmaker, registry contract.ISessionRegistry,
	notifier contract.Notifier, deliveryTimeout time.Duration) *Relay {
	return &Relay{
		log:             log,
		matchmaker:      matchmaker,
		registry:        registry,
		notifier:        notifier,
		deliveryTimeout: deliveryTimeout,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Relay resolves the partner, then its destination, and delivers the payload.
// When the destination refuses the payload, the sender alone is told and the
// conversation is left untouched.
func (r *Relay) Relay(ctx context.Context, from domain.UserID, payload domain.Payload) error {
	pairing, err := r.matchmaker.Partner(from)
	if err != nil {
		return err
	}
	destination, err := r.registry.Resolve(pairing.Partner)
	if err != nil {
		return err
	}

	n := domain.NewNotification(pairing.Partner, domain.KindContent, pairing.ConversationID, r.now())
	n.Payload = &payload

	deliveryCtx, cancel := context.WithTimeout(ctx, r.deliveryTimeout)
	defer cancel()

	err = destination.Deliver(deliveryCtx, n)
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, errors.ErrUnsupportedContent):
		r.log.Debug("Content dropped", "conversation_id", pairing.ConversationID, "kind", payload.Kind, "error", err)
		notice := domain.NewNotification(from, domain.KindUnsupportedContent, pairing.ConversationID, r.now())
		if notifyErr := r.notifier.Notify(ctx, notice); notifyErr != nil {
			r.log.Debug("Unsupported content notice dropped", "user_id", from, "error", notifyErr)
		}
		return err
	default:
		return fmt.Errorf("relay to partner: %w", err)
	}
}
