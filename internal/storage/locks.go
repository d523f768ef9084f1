package storage

import "sync"

// Locks serializes read-modify-write cycles per wallet. Callers hold a
// wallet's lock only around store mutations, never across network calls.
type Locks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocks creates a new per-wallet lock table
func NewLocks() *Locks {
	return &Locks{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the lock for a wallet, creating it on first use
func (l *Locks) Lock(wallet string) {
	l.mu.Lock()
	m, ok := l.locks[wallet]
	if !ok {
		m = &sync.Mutex{}
		l.locks[wallet] = m
	}
	l.mu.Unlock()

	m.Lock()
}

// Unlock releases the lock for a wallet
func (l *Locks) Unlock(wallet string) {
	l.mu.Lock()
	m, ok := l.locks[wallet]
	l.mu.Unlock()

	if ok {
		m.Unlock()
	}
}
