// Package sync provides keyed locking primitives shared across the process.
package sync

import "sync"

// PathLocks hands out one mutex per key so that writers to the same resource
// serialize while writers to different resources do not block each other.
// Locks are created on first reference and live for the process lifetime;
// callers are expected to pass canonical (absolute, cleaned) paths as keys.
type PathLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewPathLocks creates an empty lock registry.
func NewPathLocks() *PathLocks {
	return &PathLocks{locks: make(map[string]*sync.Mutex)}
}

// For returns the mutex registered for key, creating it if needed.
// The same *sync.Mutex is returned for every call with the same key.
func (l *PathLocks) For(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	return m
}
