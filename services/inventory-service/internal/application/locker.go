package application

import "sync"

// ItemLocker serializes work per item id inside one process. Different ids
// never contend; entries are dropped once nobody holds or waits on them.
type ItemLocker struct {
	mu    sync.Mutex
	locks map[string]*itemLock
}

type itemLock struct {
	mu   sync.Mutex
	refs int
}

// NewItemLocker creates an empty locker
func NewItemLocker() *ItemLocker {
	return &ItemLocker{locks: make(map[string]*itemLock)}
}

// Lock blocks until the caller owns id and returns the unlock function
func (l *ItemLocker) Lock(id string) func() {
	l.mu.Lock()
	lock, ok := l.locks[id]
	if !ok {
		lock = &itemLock{}
		l.locks[id] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// size is the number of ids currently tracked
func (l *ItemLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
