package calendar

import "sync"

// DateLocks hands out one readers-writer lock per date bucket so that
// check-and-set operations on different dates never contend.
type DateLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func (l *DateLocks) get(date string) *sync.RWMutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.RWMutex)
	}
	m, ok := l.locks[date]
	if !ok {
		m = &sync.RWMutex{}
		l.locks[date] = m
	}
	return m
}

// Lock acquires the exclusive section for date and returns its release func.
func (l *DateLocks) Lock(date string) func() {
	m := l.get(date)
	m.Lock()
	return m.Unlock
}

// RLock acquires a shared section for date and returns its release func.
func (l *DateLocks) RLock(date string) func() {
	m := l.get(date)
	m.RLock()
	return m.RUnlock
}
