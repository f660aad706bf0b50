package locker

import (
	"context"
	"errors"
)

var (
	ErrNotAcquired = errors.New("locker: lock not acquired")
	ErrNotHeld     = errors.New("locker: lock no longer held")
	ErrEmptyKey    = errors.New("locker: empty key")
)

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker serializes work on a key across goroutines (Memory) or
// processes (Redis).
type Locker interface {
	Acquire(ctx context.Context, key string) (Lease, error)
}
