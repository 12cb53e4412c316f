package services

import (
	"anon-chat/domain"
	"sync"
)

// userLocks serializes the session lifecycle of a same user.
// Different users never wait on each other.
type userLocks struct {
	mu    sync.Mutex
	locks map[domain.UserID]*userLock
}

type userLock struct {
	sync.Mutex
	holders int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[domain.UserID]*userLock)}
}

// lock blocks until the user's lock is held and returns its release.
// An entry lives only while someone holds or waits for it.
func (l *userLocks) lock(userID domain.UserID) func() {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.holders++
	l.mu.Unlock()

	ul.Lock()
	return func() {
		ul.Unlock()
		l.mu.Lock()
		ul.holders--
		if ul.holders == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}

func (l *userLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
