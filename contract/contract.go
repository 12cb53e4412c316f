//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"anon-chat/domain"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Destination is the transport-level handle needed to reach a user.
// Deliver returns errors.ErrUnsupportedContent when the payload cannot be forwarded.
type Destination interface {
	Deliver(ctx context.Context, n domain.Notification) error
}

// ContentPolicy tells whether a payload can be forwarded by a transport.
type ContentPolicy interface {
	Check(payload domain.Payload) error
}

type ISessionRegistry interface {
	Register(userID domain.UserID, destination Destination)
	Resolve(userID domain.UserID) (Destination, error)
	Len() int
}

// Notifier delivers one outbound notification to its addressee.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

type IMatchmaker interface {
	Reset(ctx context.Context, userID domain.UserID)
	BeginSearch(ctx context.Context, userID domain.UserID) (domain.Match, error)
	CancelSearch(userID domain.UserID) error
	EndConversation(ctx context.Context, userID domain.UserID) (domain.Ending, error)
	Partner(userID domain.UserID) (domain.Pairing, error)
	State(userID domain.UserID) (domain.PresenceState, bool)
	Stats() domain.Stats
	Check() error
}

type IRelay interface {
	Relay(ctx context.Context, from domain.UserID, payload domain.Payload) error
}
