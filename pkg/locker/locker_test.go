package locker_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxfitai/billing/pkg/locker"
)

func newRedis(t *testing.T, opts ...locker.RedisOption) (*locker.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return locker.NewRedis(client, opts...), mr
}

// assertSerializes runs n goroutines incrementing a counter under the lock
// and checks that no two critical sections overlap.
func assertSerializes(t *testing.T, l locker.Locker) {
	t.Helper()

	const n = 20
	var (
		wg      sync.WaitGroup
		inside  atomic.Int32
		overlap atomic.Bool
		count   atomic.Int32
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := l.Acquire(context.Background(), "user-1")
			if !assert.NoError(t, err) {
				return
			}
			if inside.Add(1) > 1 {
				overlap.Store(true)
			}
			count.Add(1)
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			assert.NoError(t, lease.Release(context.Background()))
		}()
	}
	wg.Wait()
	assert.False(t, overlap.Load())
	assert.Equal(t, int32(n), count.Load())
}

func TestMemory(t *testing.T) {
	t.Parallel()

	t.Run("serializes same key", func(t *testing.T) {
		t.Parallel()
		assertSerializes(t, locker.NewMemory())
	})

	t.Run("different keys do not block", func(t *testing.T) {
		t.Parallel()
		l := locker.NewMemory()
		a, err := l.Acquire(context.Background(), "a")
		require.NoError(t, err)
		b, err := l.Acquire(context.Background(), "b")
		require.NoError(t, err)
		require.NoError(t, a.Release(context.Background()))
		require.NoError(t, b.Release(context.Background()))
	})

	t.Run("context cancels wait", func(t *testing.T) {
		t.Parallel()
		l := locker.NewMemory()
		held, err := l.Acquire(context.Background(), "k")
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = l.Acquire(ctx, "k")
		assert.ErrorIs(t, err, locker.ErrNotAcquired)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		require.NoError(t, held.Release(context.Background()))
		again, err := l.Acquire(context.Background(), "k")
		require.NoError(t, err)
		require.NoError(t, again.Release(context.Background()))
	})

	t.Run("double release", func(t *testing.T) {
		t.Parallel()
		l := locker.NewMemory()
		lease, err := l.Acquire(context.Background(), "k")
		require.NoError(t, err)
		require.NoError(t, lease.Release(context.Background()))
		assert.ErrorIs(t, lease.Release(context.Background()), locker.ErrNotHeld)
	})

	t.Run("empty key", func(t *testing.T) {
		t.Parallel()
		_, err := locker.NewMemory().Acquire(context.Background(), "")
		assert.ErrorIs(t, err, locker.ErrEmptyKey)
	})
}

func TestRedis(t *testing.T) {
	t.Parallel()

	t.Run("serializes same key", func(t *testing.T) {
		t.Parallel()
		l, _ := newRedis(t)
		assertSerializes(t, l)
	})

	t.Run("gives up after max wait", func(t *testing.T) {
		t.Parallel()
		l, mr := newRedis(t, locker.WithWait(100*time.Millisecond))
		held, err := l.Acquire(context.Background(), "k")
		require.NoError(t, err)
		assert.True(t, mr.Exists("lock:k"))

		_, err = l.Acquire(context.Background(), "k")
		assert.ErrorIs(t, err, locker.ErrNotAcquired)

		require.NoError(t, held.Release(context.Background()))
		assert.False(t, mr.Exists("lock:k"))
	})

	t.Run("expired lease is not released by its old holder", func(t *testing.T) {
		t.Parallel()
		l, mr := newRedis(t, locker.WithTTL(time.Second), locker.WithPrefix("billing:"))
		old, err := l.Acquire(context.Background(), "k")
		require.NoError(t, err)

		mr.FastForward(2 * time.Second)
		fresh, err := l.Acquire(context.Background(), "k")
		require.NoError(t, err)

		assert.ErrorIs(t, old.Release(context.Background()), locker.ErrNotHeld)
		assert.True(t, mr.Exists("billing:k"))
		require.NoError(t, fresh.Release(context.Background()))
	})

	t.Run("nil client panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { locker.NewRedis(nil) })
	})
}
