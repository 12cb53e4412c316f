package domain

import (
	"time"

	"github.com/google/uuid"
)

type NotificationKind string

const (
	KindMatchFound         NotificationKind = "match_found"
	KindConversationEnded  NotificationKind = "conversation_ended"
	KindEndConfirmed       NotificationKind = "end_confirmed"
	KindContent            NotificationKind = "content"
	KindUnsupportedContent NotificationKind = "unsupported_content"
)

// Notification is an outbound effect addressed to a single user.
type Notification struct {
	ID             uuid.UUID
	To             UserID
	Kind           NotificationKind
	ConversationID uuid.UUID
	Payload        *Payload
	At             time.Time
}

func NewNotification(to UserID, kind NotificationKind, conversationID uuid.UUID, at time.Time) Notification {
	return Notification{
		ID:             uuid.New(),
		To:             to,
		Kind:           kind,
		ConversationID: conversationID,
		At:             at,
	}
}

// Match is what a successful search returns to each side.
// Discovered is true for the call that performed the claim.
type Match struct {
	ConversationID uuid.UUID
	User           UserID
	Partner        UserID
	At             time.Time
	Discovered     bool
}

// Ending describes a conversation closed by User.
type Ending struct {
	ConversationID uuid.UUID
	User           UserID
	Partner        UserID
	StartedAt      time.Time
	EndedAt        time.Time
}

func (e Ending) Duration() time.Duration {
	return e.EndedAt.Sub(e.StartedAt)
}

// Pairing is one directed entry of the pair table.
type Pairing struct {
	Partner        UserID
	ConversationID uuid.UUID
	Since          time.Time
}

type Stats struct {
	KnownUsers    int
	Searching     int
	Paired        int
	Conversations int
	Sessions      int
}
