package runtime

import (
	"anon-chat/contract"
	"anon-chat/domain"
	"context"
	"log/slog"
	"time"
)

// Dispatcher delivers notifications to the destination registered for their addressee.
type Dispatcher struct {
	log             *slog.Logger
	registry        contract.ISessionRegistry
	deliveryTimeout time.Duration
}

func NewDispatcher(log *slog.Logger, registry contract.ISessionRegistry, deliveryTimeout time.Duration) *Dispatcher {
	return &Dispatcher{log: log, registry: registry, deliveryTimeout: deliveryTimeout}
}

// Notify resolves the destination and delivers the notification, waiting at most deliveryTimeout.
func (d *Dispatcher) Notify(ctx context.Context, n domain.Notification) error {
	destination, err := d.registry.Resolve(n.To)
	if err != nil {
		d.log.Warn("No destination for notification", "user_id", n.To, "kind", n.Kind, "error", err)
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, d.deliveryTimeout)
	defer cancel()

	if err := destination.Deliver(ctx, n); err != nil {
		d.log.Warn("Notification not delivered", "user_id", n.To, "kind", n.Kind, "error", err)
		return err
	}
	d.log.Debug("Notification delivered", "user_id", n.To, "kind", n.Kind,
		"conversation_id", n.ConversationID)
	return nil
}
