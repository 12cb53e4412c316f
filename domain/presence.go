package domain

import (
	"anon-chat/errors"
	"fmt"
)

type PresenceState int

const (
	Idle PresenceState = iota
	Searching
	Paired
)

func (s PresenceState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Searching:
		return "searching"
	case Paired:
		return "paired"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type PresenceEvent string

const (
	EventBeginSearch     PresenceEvent = "begin-search"
	EventCancelSearch    PresenceEvent = "cancel-search"
	EventMatched         PresenceEvent = "matched"
	EventEndConversation PresenceEvent = "end-conversation"
	EventPartnerEnded    PresenceEvent = "partner-ended"
)

// transitions lists every legal (state, event) pair.
// The machine has no terminal state.
var transitions = map[PresenceState]map[PresenceEvent]PresenceState{
	Idle: {
		EventBeginSearch: Searching,
	},
	Searching: {
		EventCancelSearch: Idle,
		EventMatched:      Paired,
	},
	Paired: {
		EventEndConversation: Idle,
		EventPartnerEnded:    Idle,
	},
}

// Presence holds the PresenceState of every known user.
// It is not safe for concurrent use: the owner serializes access.
type Presence struct {
	states map[UserID]PresenceState
}

func NewPresence() *Presence {
	return &Presence{states: make(map[UserID]PresenceState)}
}

// Enter makes the user known and puts it in Idle, whatever its previous state.
func (p *Presence) Enter(id UserID) {
	p.states[id] = Idle
}

// State returns the current state and whether the user is known.
func (p *Presence) State(id UserID) (PresenceState, bool) {
	state, ok := p.states[id]
	return state, ok
}

// Fire applies the event and returns the new state.
// An illegal event leaves the state untouched.
func (p *Presence) Fire(id UserID, evt PresenceEvent) (PresenceState, error) {
	from, ok := p.states[id]
	if !ok {
		return Idle, fmt.Errorf("%w: user %s", errors.ErrUnknownUser, id)
	}
	to, ok := transitions[from][evt]
	if !ok {
		return from, fmt.Errorf("%w: %s while %s", errors.ErrInvalidTransition, evt, from)
	}
	p.states[id] = to
	return to, nil
}

func (p *Presence) Len() int {
	return len(p.states)
}
