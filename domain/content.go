package domain

type ContentKind string

const (
	ContentText  ContentKind = "text"
	ContentMedia ContentKind = "media"
)

// Payload is relayed unchanged between partners.
// The core never looks inside; forwardability is decided by the destination.
type Payload struct {
	Kind    ContentKind `validate:"required,oneof=text media"`
	Text    string      `validate:"required_if=Kind text"`
	Data    []byte      `validate:"required_if=Kind media"`
	MIME    string
	Caption string
}
