package errors

import "fmt"

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	// ErrUnknownUser is returned when a user has no registered session yet.
	// The caller is expected to start a session again.
	ErrUnknownUser = fmt.Errorf("unknown user")
	// ErrInvalidTransition is returned when an event is not legal from the
	// user's current presence state. Nothing has been changed.
	ErrInvalidTransition = fmt.Errorf("invalid transition")
	// ErrNotPaired is returned when a conversation is ended by a user without partner.
	ErrNotPaired          = fmt.Errorf("not paired")
	ErrUnsupportedContent = fmt.Errorf("unsupported content")
	ErrSearchCancelled    = fmt.Errorf("search cancelled")
	ErrDestinationClosed  = fmt.Errorf("destination closed")
	ErrUnauthenticated    = fmt.Errorf("unauthenticated")
)
