// Package lock provides non-blocking mutual exclusion keyed by string,
// used to keep a source from syncing twice at once.
package lock

import (
	"context"
	"sync"
)

// Locker acquires keyed locks without waiting.
type Locker interface {
	// TryLock acquires key if it is free. When ok is true the caller must
	// call release exactly once.
	TryLock(ctx context.Context, key string) (release func(), ok bool, err error)
}

// Memory is a process-local Locker.
type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemory returns an empty Memory locker.
func NewMemory() *Memory {
	return &Memory{held: make(map[string]struct{})}
}

// TryLock implements Locker.
func (m *Memory) TryLock(_ context.Context, key string) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.held[key]; busy {
		return nil, false, nil
	}
	m.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, key)
			m.mu.Unlock()
		})
	}, true, nil
}

// Held reports whether key is currently locked.
func (m *Memory) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[key]
	return ok
}
