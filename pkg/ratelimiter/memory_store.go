package ratelimiter

import (
	"context"
	"sync"
	"time"
)

type memoryBucket struct {
	tokens     int
	lastRefill time.Time
	lastAccess time.Time
}

// MemoryStore keeps buckets in process. Buckets idle for an hour are
// dropped by a background sweep.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
	now     func() time.Time

	sweepInterval time.Duration
	stop          chan struct{}
	stopOnce      sync.Once
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithSweepInterval sets how often idle buckets are removed. Zero disables
// the sweep.
func WithSweepInterval(d time.Duration) MemoryStoreOption {
	return func(ms *MemoryStore) { ms.sweepInterval = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if now != nil {
			ms.now = now
		}
	}
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	ms := &MemoryStore{
		buckets:       make(map[string]*memoryBucket),
		now:           time.Now,
		sweepInterval: 5 * time.Minute,
		stop:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ms)
	}
	if ms.sweepInterval > 0 {
		go ms.sweep()
	}
	return ms
}

func (ms *MemoryStore) Take(_ context.Context, key string, tokens int, cfg Config) (int, time.Time, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	b, ok := ms.buckets[key]
	if !ok {
		b = &memoryBucket{tokens: cfg.Capacity, lastRefill: now}
		ms.buckets[key] = b
	}
	b.tokens, b.lastRefill = refill(b.tokens, b.lastRefill, now, cfg)
	b.lastAccess = now

	resetAt := b.lastRefill.Add(cfg.RefillInterval)
	if b.tokens < tokens {
		return b.tokens - tokens, resetAt, nil
	}
	b.tokens -= tokens
	return b.tokens, resetAt, nil
}

func (ms *MemoryStore) sweep() {
	ticker := time.NewTicker(ms.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ms.removeIdle(time.Hour)
		case <-ms.stop:
			return
		}
	}
}

func (ms *MemoryStore) removeIdle(idle time.Duration) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	now := ms.now()
	for key, b := range ms.buckets {
		if now.Sub(b.lastAccess) > idle {
			delete(ms.buckets, key)
		}
	}
}

// Close stops the sweep. It is safe to call more than once.
func (ms *MemoryStore) Close() {
	ms.stopOnce.Do(func() { close(ms.stop) })
}
