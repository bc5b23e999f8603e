package lamp

import "sync"

// Locks serialises read-modify-write cycles per lamp. Different lamps
// proceed in parallel. The zero value is ready to use.
type Locks struct {
	mu    sync.Mutex
	locks map[string]*lampLock
}

type lampLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocks returns an empty lock set.
func NewLocks() *Locks {
	return &Locks{}
}

// Lock blocks until the lamp's lock is held and returns its release func.
// Entries are dropped once no goroutine holds or waits on them.
func (l *Locks) Lock(id string) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*lampLock)
	}
	ll, ok := l.locks[id]
	if !ok {
		ll = &lampLock{}
		l.locks[id] = ll
	}
	ll.refs++
	l.mu.Unlock()

	ll.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			ll.mu.Unlock()

			l.mu.Lock()
			ll.refs--
			if ll.refs == 0 {
				delete(l.locks, id)
			}
			l.mu.Unlock()
		})
	}
}

// size reports the number of tracked lamps.
func (l *Locks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
