package conversation

import "sync"

// lockEntry is a per-user mutex with a reference count so entries can be
// removed from the table once the last holder releases them.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// userLocks serializes session mutations per user. Messages, payment
// callbacks and the idle sweeper can all touch the same session, so every
// mutation runs under the user's lock.
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*lockEntry
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[int64]*lockEntry)}
}

func (ul *userLocks) acquire(userID int64) *lockEntry {
	ul.mu.Lock()
	entry, ok := ul.locks[userID]
	if !ok {
		entry = &lockEntry{}
		ul.locks[userID] = entry
	}
	entry.refs++
	ul.mu.Unlock()

	entry.mu.Lock()
	return entry
}

func (ul *userLocks) release(userID int64, entry *lockEntry) {
	entry.mu.Unlock()

	ul.mu.Lock()
	entry.refs--
	if entry.refs <= 0 {
		delete(ul.locks, userID)
	}
	ul.mu.Unlock()
}

// withLock runs fn while holding the user's lock.
func (ul *userLocks) withLock(userID int64, fn func() error) error {
	entry := ul.acquire(userID)
	defer ul.release(userID, entry)
	return fn()
}
