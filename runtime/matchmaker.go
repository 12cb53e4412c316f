package runtime

import (
	"anon-chat/contract"
	"anon-chat/domain"
	"anon-chat/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// ticket is the one-shot wake signal of a suspended search.
// Whoever removes the ticket from the waiting pool resolves it, exactly once.
type ticket struct {
	done  chan struct{}
	match domain.Match
	err   error
}

func newTicket() *ticket {
	return &ticket{done: make(chan struct{})}
}

func (t *ticket) resolve(match domain.Match, err error) {
	t.match = match
	t.err = err
	close(t.done)
}

// Matchmaker owns the presence table, the waiting pool and the pair table.
// A single mutex guards all three, so a pairing, a cancellation or a teardown
// is observed either entirely or not at all.
type Matchmaker struct {
	mu       sync.Mutex
	log      *slog.Logger
	notifier contract.Notifier
	presence *domain.Presence
	waiting  map[domain.UserID]*ticket
	pairs    map[domain.UserID]domain.Pairing
	pick     func(candidates []domain.UserID) domain.UserID
	now      func() time.Time
}

func NewMatchmaker(log *slog.Logger, notifier contract.Notifier) *Matchmaker {
	return &Matchmaker{
		log:      log,
		notifier: notifier,
		presence: domain.NewPresence(),
		waiting:  make(map[domain.UserID]*ticket),
		pairs:    make(map[domain.UserID]domain.Pairing),
		// Any waiting user is an acceptable partner: no ordering nor fairness.
		pick: func(candidates []domain.UserID) domain.UserID { return lo.Sample(candidates) },
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Reset puts the user in Idle, making it known if needed.
// A running search is cancelled and a running conversation is ended,
// the partner being notified.
func (m *Matchmaker) Reset(ctx context.Context, userID domain.UserID) {
	m.mu.Lock()
	var ending *domain.Ending
	state, known := m.presence.State(userID)
	switch {
	case known && state == domain.Searching:
		if t, ok := m.waiting[userID]; ok {
			delete(m.waiting, userID)
			t.resolve(domain.Match{}, errors.ErrSearchCancelled)
		}
	case known && state == domain.Paired:
		if e, ok := m.unpair(userID); ok {
			ending = &e
		}
	}
	m.presence.Enter(userID)
	m.mu.Unlock()

	if ending != nil {
		m.log.Info("Conversation ended by reset", "conversation_id", ending.ConversationID)
		m.notify(ctx, domain.NewNotification(ending.Partner, domain.KindConversationEnded,
			ending.ConversationID, ending.EndedAt))
	}
}

// BeginSearch moves the user to Searching and pairs it with any other waiting user.
// Without a candidate, the call suspends until another search claims the user,
// the search is cancelled or ctx is done. A claim always wins over a racing
// cancellation.
func (m *Matchmaker) BeginSearch(ctx context.Context, userID domain.UserID) (domain.Match, error) {
	m.mu.Lock()
	if _, err := m.presence.Fire(userID, domain.EventBeginSearch); err != nil {
		m.mu.Unlock()
		return domain.Match{}, err
	}

	candidates := lo.Without(lo.Keys(m.waiting), userID)
	if len(candidates) == 0 {
		t := newTicket()
		m.waiting[userID] = t
		m.mu.Unlock()
		m.log.Debug("Waiting for a partner", "user_id", userID)
		return m.await(ctx, userID, t)
	}

	partnerID := m.pick(candidates)
	own, theirs, partnerTicket := m.claim(userID, partnerID)
	m.mu.Unlock()

	m.log.Info("Users paired", "conversation_id", own.ConversationID)

	// The caller is told first: the partner may start talking as soon as it knows.
	outbound := context.WithoutCancel(ctx)
	m.notify(outbound, domain.NewNotification(userID, domain.KindMatchFound, own.ConversationID, own.At))
	m.notify(outbound, domain.NewNotification(partnerID, domain.KindMatchFound, theirs.ConversationID, theirs.At))
	partnerTicket.resolve(theirs, nil)

	return own, nil
}

func (m *Matchmaker) await(ctx context.Context, userID domain.UserID, t *ticket) (domain.Match, error) {
	select {
	case <-t.done:
		return t.match, t.err
	case <-ctx.Done():
	}

	m.mu.Lock()
	if m.waiting[userID] == t {
		delete(m.waiting, userID)
		m.fire(userID, domain.EventCancelSearch)
		m.mu.Unlock()
		m.log.Debug("Search abandoned", "user_id", userID, "error", ctx.Err())
		return domain.Match{}, ctx.Err()
	}
	m.mu.Unlock()

	// Someone else took the ticket out of the pool first and will resolve it.
	<-t.done
	return t.match, t.err
}

// claim pairs two searching users. Must be called with mu held.
func (m *Matchmaker) claim(userID, partnerID domain.UserID) (domain.Match, domain.Match, *ticket) {
	partnerTicket := m.waiting[partnerID]
	delete(m.waiting, partnerID)
	delete(m.waiting, userID)

	m.fire(userID, domain.EventMatched)
	m.fire(partnerID, domain.EventMatched)

	conversationID := uuid.New()
	at := m.now()
	m.pairs[userID] = domain.Pairing{Partner: partnerID, ConversationID: conversationID, Since: at}
	m.pairs[partnerID] = domain.Pairing{Partner: userID, ConversationID: conversationID, Since: at}

	own := domain.Match{ConversationID: conversationID, User: userID, Partner: partnerID, At: at, Discovered: true}
	theirs := domain.Match{ConversationID: conversationID, User: partnerID, Partner: userID, At: at}
	return own, theirs, partnerTicket
}

// CancelSearch moves a searching user back to Idle and wakes its suspended search.
func (m *Matchmaker) CancelSearch(userID domain.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.presence.Fire(userID, domain.EventCancelSearch); err != nil {
		return err
	}
	if t, ok := m.waiting[userID]; ok {
		delete(m.waiting, userID)
		t.resolve(domain.Match{}, errors.ErrSearchCancelled)
	}
	m.log.Debug("Search cancelled", "user_id", userID)
	return nil
}

// EndConversation tears the pair down, moves both sides to Idle and notifies them.
func (m *Matchmaker) EndConversation(ctx context.Context, userID domain.UserID) (domain.Ending, error) {
	m.mu.Lock()
	state, known := m.presence.State(userID)
	if !known {
		m.mu.Unlock()
		return domain.Ending{}, fmt.Errorf("%w: user %s", errors.ErrUnknownUser, userID)
	}

	ending, ok := m.unpair(userID)
	if !ok {
		if state == domain.Paired {
			m.log.Error("Paired user without partner, resetting to idle", "user_id", userID)
			m.presence.Enter(userID)
		}
		m.mu.Unlock()
		return domain.Ending{}, fmt.Errorf("%w: user %s is %s", errors.ErrNotPaired, userID, state)
	}
	m.fire(userID, domain.EventEndConversation)
	m.mu.Unlock()

	m.log.Info("Conversation ended", "conversation_id", ending.ConversationID, "duration", ending.Duration())

	outbound := context.WithoutCancel(ctx)
	m.notify(outbound, domain.NewNotification(ending.Partner, domain.KindConversationEnded,
		ending.ConversationID, ending.EndedAt))
	m.notify(outbound, domain.NewNotification(userID, domain.KindEndConfirmed,
		ending.ConversationID, ending.EndedAt))
	return ending, nil
}

// unpair removes both entries of the pair and moves the partner to Idle.
// The caller's own transition is left to the caller. Must be called with mu held.
func (m *Matchmaker) unpair(userID domain.UserID) (domain.Ending, bool) {
	pairing, ok := m.pairs[userID]
	if !ok {
		return domain.Ending{}, false
	}
	delete(m.pairs, userID)
	delete(m.pairs, pairing.Partner)
	m.fire(pairing.Partner, domain.EventPartnerEnded)

	return domain.Ending{
		ConversationID: pairing.ConversationID,
		User:           userID,
		Partner:        pairing.Partner,
		StartedAt:      pairing.Since,
		EndedAt:        m.now(),
	}, true
}

// Partner returns the pair entry of a user allowed to send content.
func (m *Matchmaker) Partner(userID domain.UserID) (domain.Pairing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, known := m.presence.State(userID)
	if !known {
		return domain.Pairing{}, fmt.Errorf("%w: user %s", errors.ErrUnknownUser, userID)
	}
	if state != domain.Paired {
		return domain.Pairing{}, fmt.Errorf("%w: content while %s", errors.ErrInvalidTransition, state)
	}
	pairing, ok := m.pairs[userID]
	if !ok {
		m.log.Error("Paired user without partner, resetting to idle", "user_id", userID)
		m.presence.Enter(userID)
		return domain.Pairing{}, fmt.Errorf("%w: user %s", errors.ErrNotPaired, userID)
	}
	return pairing, nil
}

func (m *Matchmaker) State(userID domain.UserID) (domain.PresenceState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.presence.State(userID)
}

func (m *Matchmaker) Stats() domain.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.Stats{
		KnownUsers:    m.presence.Len(),
		Searching:     len(m.waiting),
		Paired:        len(m.pairs),
		Conversations: len(m.pairs) / 2,
	}
}

// Check verifies the pool and pair table invariants.
func (m *Matchmaker) Check() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id := range m.waiting {
		if _, ok := m.pairs[id]; ok {
			return fmt.Errorf("user %s is both waiting and paired", id)
		}
		if state, _ := m.presence.State(id); state != domain.Searching {
			return fmt.Errorf("waiting user %s is %s", id, state)
		}
	}
	for id, pairing := range m.pairs {
		if pairing.Partner == id {
			return fmt.Errorf("user %s is paired with itself", id)
		}
		back, ok := m.pairs[pairing.Partner]
		if !ok || back.Partner != id || back.ConversationID != pairing.ConversationID {
			return fmt.Errorf("pair %s -> %s is not symmetric", id, pairing.Partner)
		}
		if state, _ := m.presence.State(id); state != domain.Paired {
			return fmt.Errorf("paired user %s is %s", id, state)
		}
	}
	return nil
}

// fire applies a transition the invariants guarantee to be legal. Must be called with mu held.
func (m *Matchmaker) fire(userID domain.UserID, evt domain.PresenceEvent) {
	if _, err := m.presence.Fire(userID, evt); err != nil {
		m.log.Error("Unexpected presence transition", "user_id", userID, "event", evt, "error", err)
	}
}

func (m *Matchmaker) notify(ctx context.Context, n domain.Notification) {
	if err := m.notifier.Notify(ctx, n); err != nil {
		m.log.Debug("Outbound notification dropped", "user_id", n.To, "kind", n.Kind, "error", err)
	}
}
