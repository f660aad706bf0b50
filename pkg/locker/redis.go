package locker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisOption configures a Redis locker.
type RedisOption func(*Redis)

// WithTTL sets how long a lease lives if its holder dies.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithWait bounds how long Acquire retries before giving up.
func WithWait(wait time.Duration) RedisOption {
	return func(r *Redis) {
		if wait > 0 {
			r.wait = wait
		}
	}
}

// WithPrefix namespaces lock keys.
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// Redis is a single-instance Redis lock (SET NX PX plus a token-checked
// release). It is enough to serialize webhook handlers across replicas.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	wait   time.Duration
	prefix string
}

// NewRedis creates a Redis-backed locker. It panics on a nil client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	if client == nil {
		panic("locker: redis client is required")
	}
	r := &Redis{
		client: client,
		ttl:    30 * time.Second,
		wait:   10 * time.Second,
		prefix: "lock:",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Acquire retries SET NX with exponential backoff until the lock is taken,
// the max wait elapses, or ctx is done.
func (r *Redis) Acquire(ctx context.Context, key string) (Lease, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	fullKey := r.prefix + key
	token := uuid.NewString()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 20 * time.Millisecond
	bo.MaxInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = r.wait

	op := func() error {
		ok, err := r.client.SetNX(ctx, fullKey, token, r.ttl).Result()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return ErrNotAcquired
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if errors.Is(err, ErrNotAcquired) {
			return nil, fmt.Errorf("%w: %s", ErrNotAcquired, key)
		}
		if ctx.Err() != nil {
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		}
		return nil, fmt.Errorf("locker: acquire %s: %w", key, err)
	}

	return &redisLease{client: r.client, key: fullKey, token: token}, nil
}

type redisLease struct {
	client redis.UniversalClient
	key    string
	token  string
}

func (l *redisLease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("locker: release %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
