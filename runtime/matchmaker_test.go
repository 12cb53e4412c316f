package runtime

import (
	"anon-chat/domain"
	"anon-chat/errors"
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu            sync.Mutex
	notifications []domain.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
	return nil
}

func (r *recordingNotifier) For(userID domain.UserID) []domain.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []domain.NotificationKind
	for _, n := range r.notifications {
		if n.To == userID {
			kinds = append(kinds, n.Kind)
		}
	}
	return kinds
}

func (r *recordingNotifier) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notifications)
}

type searchResult struct {
	match domain.Match
	err   error
}

func newTestMatchmaker(users ...domain.UserID) (*Matchmaker, *recordingNotifier) {
	notifier := &recordingNotifier{}
	matchmaker := NewMatchmaker(logs.GetLoggerFromLevel(slog.LevelDebug), notifier)
	for _, id := range users {
		matchmaker.Reset(context.Background(), id)
	}
	return matchmaker, notifier
}

func searchAsync(ctx context.Context, m *Matchmaker, userID domain.UserID) <-chan searchResult {
	res := make(chan searchResult, 1)
	go func() {
		match, err := m.BeginSearch(ctx, userID)
		res <- searchResult{match: match, err: err}
	}()
	return res
}

func waitForState(t *testing.T, m *Matchmaker, userID domain.UserID, expected domain.PresenceState) {
	require.Eventually(t, func() bool {
		state, _ := m.State(userID)
		return state == expected
	}, time.Second, 5*time.Millisecond)
}

func receive(t *testing.T, res <-chan searchResult) searchResult {
	select {
	case r := <-res:
		return r
	case <-time.After(2 * time.Second):
		require.Fail(t, "search did not return in time")
		return searchResult{}
	}
}

func pairUp(t *testing.T, m *Matchmaker, a, b domain.UserID) {
	res := searchAsync(context.Background(), m, a)
	waitForState(t, m, a, domain.Searching)
	_, err := m.BeginSearch(context.Background(), b)
	require.NoError(t, err)
	require.NoError(t, receive(t, res).err)
}

func TestMatchmaker_Two_Searching_Users_Are_Paired(t *testing.T) {
	req := require.New(t)
	const alice, bob domain.UserID = 1, 2
	m, notifier := newTestMatchmaker(alice, bob)

	// Given Alice is waiting for a partner
	aliceSearch := searchAsync(context.Background(), m, alice)
	waitForState(t, m, alice, domain.Searching)
	req.Empty(notifier.For(alice))

	// When Bob starts searching
	bobMatch, err := m.BeginSearch(context.Background(), bob)
	req.NoError(err)

	// Then Bob discovered Alice and Alice has been woken up with the same conversation
	aliceResult := receive(t, aliceSearch)
	req.NoError(aliceResult.err)
	req.True(bobMatch.Discovered)
	req.False(aliceResult.match.Discovered)
	req.Equal(alice, bobMatch.Partner)
	req.Equal(bob, aliceResult.match.Partner)
	req.Equal(bobMatch.ConversationID, aliceResult.match.ConversationID)

	// And the pair table is symmetric
	aliceSide, err := m.Partner(alice)
	req.NoError(err)
	bobSide, err := m.Partner(bob)
	req.NoError(err)
	req.Equal(bob, aliceSide.Partner)
	req.Equal(alice, bobSide.Partner)

	// And both are paired, nobody waits anymore
	for _, id := range []domain.UserID{alice, bob} {
		state, _ := m.State(id)
		req.Equal(domain.Paired, state)
	}
	req.Empty(m.waiting)
	req.NoError(m.Check())

	// And each side received exactly one match notification
	req.Equal([]domain.NotificationKind{domain.KindMatchFound}, notifier.For(alice))
	req.Equal([]domain.NotificationKind{domain.KindMatchFound}, notifier.For(bob))
}

func TestMatchmaker_Search_Alone_Then_Cancel(t *testing.T) {
	req := require.New(t)
	const alice domain.UserID = 1
	m, notifier := newTestMatchmaker(alice)

	// Given Alice is searching alone
	search := searchAsync(context.Background(), m, alice)
	waitForState(t, m, alice, domain.Searching)

	// When she cancels
	req.NoError(m.CancelSearch(alice))

	// Then the suspended search returns
	result := receive(t, search)
	req.ErrorIs(result.err, errors.ErrSearchCancelled)

	// And Alice is idle, the pool is empty and nothing was sent
	state, _ := m.State(alice)
	req.Equal(domain.Idle, state)
	req.Empty(m.waiting)
	req.Equal(0, notifier.Len())
}

func TestMatchmaker_Cancel_When_Not_Searching(t *testing.T) {
	req := require.New(t)
	const alice, bob, carol domain.UserID = 1, 2, 3
	m, _ := newTestMatchmaker(alice, bob, carol)
	pairUp(t, m, bob, carol)
	before := m.Stats()

	// When an idle user and a paired user cancel a search
	errIdle := m.CancelSearch(alice)
	errPaired := m.CancelSearch(bob)

	// Then both fail and nothing moved
	req.ErrorIs(errIdle, errors.ErrInvalidTransition)
	req.ErrorIs(errPaired, errors.ErrInvalidTransition)
	req.Equal(before, m.Stats())
	state, _ := m.State(alice)
	req.Equal(domain.Idle, state)
	pairing, err := m.Partner(bob)
	req.NoError(err)
	req.Equal(carol, pairing.Partner)
}

func TestMatchmaker_Begin_Search_Twice_Is_Rejected(t *testing.T) {
	req := require.New(t)
	const alice, bob, carol domain.UserID = 1, 2, 3
	m, _ := newTestMatchmaker(alice, bob, carol)

	// Given Alice is already searching
	search := searchAsync(context.Background(), m, alice)
	waitForState(t, m, alice, domain.Searching)

	// When she searches again, the search is not restarted
	_, err := m.BeginSearch(context.Background(), alice)
	req.ErrorIs(err, errors.ErrInvalidTransition)
	req.Len(m.waiting, 1)

	// Given Bob pairs with Alice
	_, err = m.BeginSearch(context.Background(), bob)
	req.NoError(err)
	req.NoError(receive(t, search).err)

	// When a paired user searches
	_, err = m.BeginSearch(context.Background(), bob)

	// Then it is rejected too and Carol is untouched
	req.ErrorIs(err, errors.ErrInvalidTransition)
	state, _ := m.State(carol)
	req.Equal(domain.Idle, state)
	req.NoError(m.Check())
}

func TestMatchmaker_Unknown_User_Cannot_Search(t *testing.T) {
	req := require.New(t)
	m, _ := newTestMatchmaker()

	_, err := m.BeginSearch(context.Background(), 99)

	req.ErrorIs(err, errors.ErrUnknownUser)
	req.Empty(m.waiting)
}

func TestMatchmaker_End_Conversation(t *testing.T) {
	req := require.New(t)
	const alice, bob domain.UserID = 1, 2
	m, notifier := newTestMatchmaker(alice, bob)
	pairUp(t, m, alice, bob)
	conversation, err := m.Partner(alice)
	req.NoError(err)

	// When Alice ends the conversation
	ending, err := m.EndConversation(context.Background(), alice)

	// Then both are idle and the pair table is empty
	req.NoError(err)
	req.Equal(alice, ending.User)
	req.Equal(bob, ending.Partner)
	req.Equal(conversation.ConversationID, ending.ConversationID)
	for _, id := range []domain.UserID{alice, bob} {
		state, _ := m.State(id)
		req.Equal(domain.Idle, state)
	}
	req.Empty(m.pairs)

	// And Bob was told, Alice got a confirmation
	req.Equal([]domain.NotificationKind{domain.KindMatchFound, domain.KindConversationEnded}, notifier.For(bob))
	req.Equal([]domain.NotificationKind{domain.KindMatchFound, domain.KindEndConfirmed}, notifier.For(alice))

	// And ending again fails on both sides
	_, err = m.EndConversation(context.Background(), alice)
	req.ErrorIs(err, errors.ErrNotPaired)
	_, err = m.EndConversation(context.Background(), bob)
	req.ErrorIs(err, errors.ErrNotPaired)
}

func TestMatchmaker_End_Conversation_Resets_Inconsistent_User(t *testing.T) {
	req := require.New(t)
	const alice domain.UserID = 1
	m, _ := newTestMatchmaker(alice)

	// Given Alice is marked paired without any pair entry
	_, err := m.presence.Fire(alice, domain.EventBeginSearch)
	req.NoError(err)
	_, err = m.presence.Fire(alice, domain.EventMatched)
	req.NoError(err)

	// When she ends her conversation
	_, err = m.EndConversation(context.Background(), alice)

	// Then the error is reported and she is back to idle
	req.ErrorIs(err, errors.ErrNotPaired)
	state, _ := m.State(alice)
	req.Equal(domain.Idle, state)
}

func TestMatchmaker_Partner_Resets_Inconsistent_User(t *testing.T) {
	req := require.New(t)
	const alice domain.UserID = 1
	m, _ := newTestMatchmaker(alice)

	// Given Alice is marked paired without any pair entry
	_, err := m.presence.Fire(alice, domain.EventBeginSearch)
	req.NoError(err)
	_, err = m.presence.Fire(alice, domain.EventMatched)
	req.NoError(err)

	// When she tries to send content
	_, err = m.Partner(alice)

	// Then the error is reported and she is back to idle
	req.ErrorIs(err, errors.ErrNotPaired)
	state, _ := m.State(alice)
	req.Equal(domain.Idle, state)
	req.NoError(m.Check())
}

func TestMatchmaker_Context_Done_Abandons_Search(t *testing.T) {
	req := require.New(t)
	const alice domain.UserID = 1
	m, _ := newTestMatchmaker(alice)
	ctx, cancel := context.WithCancel(context.Background())

	// Given Alice is waiting
	search := searchAsync(ctx, m, alice)
	waitForState(t, m, alice, domain.Searching)

	// When her session goes away
	cancel()

	// Then the search stops without leaving a stale pool entry
	result := receive(t, search)
	req.ErrorIs(result.err, context.Canceled)
	state, _ := m.State(alice)
	req.Equal(domain.Idle, state)
	req.Empty(m.waiting)
}

func TestMatchmaker_Reset(t *testing.T) {
	t.Run("while searching cancels the search", func(t *testing.T) {
		req := require.New(t)
		m, _ := newTestMatchmaker(1)
		search := searchAsync(context.Background(), m, 1)
		waitForState(t, m, 1, domain.Searching)

		m.Reset(context.Background(), 1)

		req.ErrorIs(receive(t, search).err, errors.ErrSearchCancelled)
		state, _ := m.State(1)
		req.Equal(domain.Idle, state)
		req.Empty(m.waiting)
	})

	t.Run("while paired ends the conversation", func(t *testing.T) {
		req := require.New(t)
		m, notifier := newTestMatchmaker(1, 2)
		pairUp(t, m, 1, 2)

		m.Reset(context.Background(), 2)

		req.Empty(m.pairs)
		for _, id := range []domain.UserID{1, 2} {
			state, _ := m.State(id)
			req.Equal(domain.Idle, state)
		}
		req.Contains(notifier.For(1), domain.KindConversationEnded)
		req.NoError(m.Check())
	})
}

func TestMatchmaker_Check_Detects_Broken_Pairs(t *testing.T) {
	req := require.New(t)
	m, _ := newTestMatchmaker(1, 2)
	m.pairs[1] = domain.Pairing{Partner: 2, ConversationID: uuid.New()}

	req.Error(m.Check())
}

func TestMatchmaker_Concurrent_Searches_Pair_Everyone(t *testing.T) {
	req := require.New(t)
	const users = 200
	ids := make([]domain.UserID, users)
	for i := range ids {
		ids[i] = domain.UserID(i + 1)
	}
	m, notifier := newTestMatchmaker(ids...)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// When every user searches at the same time
	results := make([]searchResult, users)
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id domain.UserID) {
			defer wg.Done()
			match, err := m.BeginSearch(ctx, id)
			results[i] = searchResult{match: match, err: err}
		}(i, id)
	}
	wg.Wait()

	// Then everyone has exactly one distinct partner which points back
	partners := make(map[domain.UserID]domain.UserID)
	for i, r := range results {
		req.NoError(r.err)
		req.Equal(ids[i], r.match.User)
		req.NotEqual(r.match.User, r.match.Partner)
		partners[r.match.User] = r.match.Partner
	}
	for user, partner := range partners {
		req.Equal(user, partners[partner])
		req.Equal([]domain.NotificationKind{domain.KindMatchFound}, notifier.For(user))
	}
	stats := m.Stats()
	req.Equal(users, stats.Paired)
	req.Equal(0, stats.Paired%2)
	req.Equal(0, stats.Searching)
	req.NoError(m.Check())
}

func TestMatchmaker_Concurrent_Searches_And_Cancellations(t *testing.T) {
	req := require.New(t)
	const users = 101
	ids := make([]domain.UserID, users)
	for i := range ids {
		ids[i] = domain.UserID(i + 1)
	}
	m, _ := newTestMatchmaker(ids...)

	// When users search while some of them cancel at random
	results := make([]searchResult, users)
	var searches sync.WaitGroup
	for i, id := range ids {
		searches.Add(1)
		go func(i int, id domain.UserID) {
			defer searches.Done()
			match, err := m.BeginSearch(context.Background(), id)
			results[i] = searchResult{match: match, err: err}
		}(i, id)
	}
	var cancels sync.WaitGroup
	for _, id := range ids {
		if rand.Intn(3) != 0 {
			continue
		}
		cancels.Add(1)
		go func(id domain.UserID) {
			defer cancels.Done()
			_ = m.CancelSearch(id)
		}(id)
	}
	cancels.Wait()
	req.NoError(m.Check())

	// And whoever still waits eventually gives up
	done := make(chan struct{})
	go func() {
		searches.Wait()
		close(done)
	}()
	deadline := time.After(5 * time.Second)
	for finished := false; !finished; {
		select {
		case <-done:
			finished = true
		case <-deadline:
			req.FailNow("searches never returned")
		case <-time.After(10 * time.Millisecond):
			for _, id := range ids {
				_ = m.CancelSearch(id)
			}
		}
	}

	// Then every result agrees with the tables: a claim never loses against a cancellation
	for i, r := range results {
		state, _ := m.State(ids[i])
		if r.err != nil {
			req.ErrorIs(r.err, errors.ErrSearchCancelled)
			req.Equal(domain.Idle, state)
			continue
		}
		req.Equal(domain.Paired, state)
		pairing, err := m.Partner(ids[i])
		req.NoError(err)
		req.Equal(r.match.Partner, pairing.Partner)
	}
	stats := m.Stats()
	req.Equal(0, stats.Paired%2)
	req.NoError(m.Check())
}
