package server

import (
	"sync"
)

// MatchLocker hands out one mutex per match id. Transitions and membership
// changes for the same match are linearized through it, separate matches
// proceed fully in parallel. Entries are reference counted so the map does
// not grow with every match ever seen.
type MatchLocker struct {
	mu sync.Mutex
	locks map[string]*matchLock
}

type matchLock struct {
	sync.Mutex
	refs int
}

func NewMatchLocker() *MatchLocker {
	return &MatchLocker{
		locks: make(map[string]*matchLock),
	}
}

// Lock blocks until the caller owns the match's serialization domain and
// returns the matching unlock function.
func (l *MatchLocker) Lock(matchID string) func() {

	l.mu.Lock()
	entry, ok := l.locks[matchID]
	if !ok {
		entry = &matchLock{}
		l.locks[matchID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.Lock()

	return func() {
		entry.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, matchID)
		}
		l.mu.Unlock()
	}

}
