package locker

import (
	"context"
	"errors"
	"sync"
)

type memoryEntry struct {
	ch   chan struct{}
	refs int
}

// Memory is a keyed mutex for a single process.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

// NewMemory creates an in-process locker.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*memoryEntry)}
}

// Acquire blocks until key is free or ctx is done.
func (m *Memory) Acquire(ctx context.Context, key string) (Lease, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &memoryEntry{ch: make(chan struct{}, 1)}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return &memoryLease{m: m, key: key, e: e}, nil
	case <-ctx.Done():
		m.unref(key, e)
		return nil, errors.Join(ErrNotAcquired, ctx.Err())
	}
}

func (m *Memory) unref(key string, e *memoryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
}

type memoryLease struct {
	once sync.Once
	m    *Memory
	key  string
	e    *memoryEntry
}

func (l *memoryLease) Release(context.Context) error {
	err := ErrNotHeld
	l.once.Do(func() {
		<-l.e.ch
		l.m.unref(l.key, l.e)
		err = nil
	})
	return err
}
