package ratelimiter

import (
	"context"
	"fmt"
)

// Limiter decides whether a keyed request may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
}

// Bucket is a token bucket backed by a Store.
type Bucket struct {
	store Store
	cfg   Config
}

// NewBucket validates cfg. It panics on a nil store.
func NewBucket(store Store, cfg Config) (*Bucket, error) {
	if store == nil {
		panic("ratelimiter: store is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Bucket{store: store, cfg: cfg}, nil
}

func (b *Bucket) Allow(ctx context.Context, key string) (*Result, error) {
	return b.AllowN(ctx, key, 1)
}

func (b *Bucket) AllowN(ctx context.Context, key string, n int) (*Result, error) {
	if n <= 0 || n > b.cfg.Capacity {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTokenCount, n)
	}
	remaining, resetAt, err := b.store.Take(ctx, key, n, b.cfg)
	if err != nil {
		return nil, err
	}
	return &Result{Limit: b.cfg.Capacity, Remaining: remaining, ResetAt: resetAt}, nil
}

func (c Config) validate() error {
	switch {
	case c.Capacity <= 0:
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidConfig, c.Capacity)
	case c.RefillRate <= 0:
		return fmt.Errorf("%w: refill rate must be positive, got %d", ErrInvalidConfig, c.RefillRate)
	case c.RefillInterval <= 0:
		return fmt.Errorf("%w: refill interval must be positive, got %v", ErrInvalidConfig, c.RefillInterval)
	}
	return nil
}
