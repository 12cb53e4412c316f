// Package chatpb holds the wire messages and the service descriptor of
// anonchat.v1.ChatService. Messages travel as JSON, see codec.go.
package chatpb

import "time"

type Payload struct {
	Kind    string `json:"kind"`
	Text    string `json:"text,omitempty"`
	Data    []byte `json:"data,omitempty"`
	MIME    string `json:"mime,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// ----- Session -----

type LoginRequest struct{}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ConnectRequest struct{}

// EventSessionStarted is the first event of every Connect stream.
// Other kinds mirror the domain notification kinds.
const EventSessionStarted = "session_started"

// Event is pushed on the Connect stream.
type Event struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Payload        *Payload  `json:"payload,omitempty"`
	At             time.Time `json:"at"`
}

// ----- Matchmaking -----

type SearchRequest struct{}

type SearchResponse struct {
	ConversationID string    `json:"conversation_id"`
	Discovered     bool      `json:"discovered"`
	At             time.Time `json:"at"`
}

type CancelSearchRequest struct{}

type CancelSearchResponse struct{}

type EndConversationRequest struct{}

type EndConversationResponse struct {
	ConversationID string `json:"conversation_id"`
	DurationMs     int64  `json:"duration_ms"`
}

// ----- Relay -----

type SendRequest struct {
	Payload Payload `json:"payload"`
}

type SendResponse struct{}

// ----- Stats -----

type StatsRequest struct{}

type StatsResponse struct {
	KnownUsers    int `json:"known_users"`
	Searching     int `json:"searching"`
	Paired        int `json:"paired"`
	Conversations int `json:"conversations"`
	Sessions      int `json:"sessions"`
}
