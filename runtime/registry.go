package runtime

import (
	"anon-chat/contract"
	"anon-chat/domain"
	"anon-chat/errors"
	"fmt"
	"sync"
)

// Registry maps a user to the destination needed to reach it.
// Entries are overwritten on every new session and never removed.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.UserID]contract.Destination
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.UserID]contract.Destination),
	}
}

// Register records the user's current destination.
// Calling it again replaces the previous destination.
func (r *Registry) Register(userID domain.UserID, destination contract.Destination) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[userID] = destination
}

// Resolve returns the destination registered for the user.
func (r *Registry) Resolve(userID domain.UserID) (contract.Destination, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	destination, ok := r.sessions[userID]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", errors.ErrUnknownUser, userID)
	}
	return destination, nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
