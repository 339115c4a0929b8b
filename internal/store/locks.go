package store

import "sync"

// keyedLocks hands out one mutex per identity ID. Rotation holds an
// identity's lock across its whole sequence; ordinary entry writes for
// the same identity block behind it.
//
// Entries are refcounted: a mutex lives in the map only while some
// goroutine holds or waits for it, so the map does not accumulate one
// entry per identity ever locked.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[int64]*identityLock
}

type identityLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[int64]*identityLock)}
}

// Lock acquires the per-identity lock.
func (k *keyedLocks) Lock(id int64) {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &identityLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
}

// Unlock releases the per-identity lock, evicting the map entry once no
// holder or waiter remains.
func (k *keyedLocks) Unlock(id int64) {
	k.mu.Lock()
	l := k.locks[id]
	l.refs--
	if l.refs == 0 {
		delete(k.locks, id)
	}
	k.mu.Unlock()

	l.mu.Unlock()
}
