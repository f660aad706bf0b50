package ratelimiter_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxfitai/billing/pkg/ratelimiter"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testConfig = ratelimiter.Config{Capacity: 3, RefillRate: 1, RefillInterval: time.Minute}

func stores(t *testing.T, clk *clock) map[string]ratelimiter.Store {
	t.Helper()

	mem := ratelimiter.NewMemoryStore(ratelimiter.WithSweepInterval(0), ratelimiter.WithClock(clk.Now))
	t.Cleanup(mem.Close)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]ratelimiter.Store{
		"memory": mem,
		"redis":  ratelimiter.NewRedisStore(client, ratelimiter.WithRedisClock(clk.Now)),
	}
}

func TestBucket_BurstAndRefill(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"memory", "redis"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			clk := newClock()
			limiter, err := ratelimiter.NewBucket(stores(t, clk)[name], testConfig)
			require.NoError(t, err)
			ctx := context.Background()

			for want := 2; want >= 0; want-- {
				res, err := limiter.Allow(ctx, "u1")
				require.NoError(t, err)
				assert.True(t, res.Allowed())
				assert.Equal(t, want, res.Remaining)
				assert.Equal(t, 3, res.Limit)
			}

			res, err := limiter.Allow(ctx, "u1")
			require.NoError(t, err)
			assert.False(t, res.Allowed())
			assert.Equal(t, time.Minute, res.RetryAfter(clk.Now()))

			// Denials do not dig the bucket deeper.
			res, err = limiter.Allow(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, -1, res.Remaining)

			// Other keys are independent.
			res, err = limiter.Allow(ctx, "u2")
			require.NoError(t, err)
			assert.True(t, res.Allowed())

			clk.Advance(time.Minute)
			res, err = limiter.Allow(ctx, "u1")
			require.NoError(t, err)
			assert.True(t, res.Allowed())
			assert.Equal(t, 0, res.Remaining)

			clk.Advance(24 * time.Hour)
			res, err = limiter.Allow(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, 2, res.Remaining, "refill is capped at capacity")
		})
	}
}

func TestBucket_AllowN(t *testing.T) {
	t.Parallel()

	limiter, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(ratelimiter.WithSweepInterval(0)), testConfig)
	require.NoError(t, err)

	_, err = limiter.AllowN(context.Background(), "u1", 0)
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidTokenCount)
	_, err = limiter.AllowN(context.Background(), "u1", 4)
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidTokenCount)

	res, err := limiter.AllowN(context.Background(), "u1", 3)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Remaining)
}

func TestNewBucket_InvalidConfig(t *testing.T) {
	t.Parallel()

	store := ratelimiter.NewMemoryStore(ratelimiter.WithSweepInterval(0))
	tests := []struct {
		name string
		cfg  ratelimiter.Config
	}{
		{"zero capacity", ratelimiter.Config{RefillRate: 1, RefillInterval: time.Second}},
		{"zero rate", ratelimiter.Config{Capacity: 1, RefillInterval: time.Second}},
		{"zero interval", ratelimiter.Config{Capacity: 1, RefillRate: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ratelimiter.NewBucket(store, tt.cfg)
			assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
		})
	}
}

func TestRedisStore_Unavailable(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	limiter, err := ratelimiter.NewBucket(ratelimiter.NewRedisStore(client), testConfig)
	require.NoError(t, err)
	_, err = limiter.Allow(context.Background(), "u1")
	assert.ErrorIs(t, err, ratelimiter.ErrStoreUnavailable)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (*ratelimiter.Result, error) {
	return nil, ratelimiter.ErrStoreUnavailable
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	byHeader := func(r *http.Request) string { return r.Header.Get("X-User") }

	t.Run("limits by key", func(t *testing.T) {
		t.Parallel()

		limiter, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(ratelimiter.WithSweepInterval(0)),
			ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Hour})
		require.NoError(t, err)
		var denied int
		h := ratelimiter.Middleware(limiter, byHeader,
			ratelimiter.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request, res *ratelimiter.Result) {
				denied++
				w.WriteHeader(http.StatusTooManyRequests)
			}),
		)(ok)

		send := func(user string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodPost, "/checkout/stripe", nil)
			req.Header.Set("X-User", user)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			return rec
		}

		rec := send("u1")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

		rec = send("u1")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		assert.Equal(t, 1, denied)

		assert.Equal(t, http.StatusNoContent, send("u2").Code)
	})

	t.Run("empty key and store failure pass through", func(t *testing.T) {
		t.Parallel()

		h := ratelimiter.Middleware(failingLimiter{}, byHeader)(ok)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)

		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-User", "u1")
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	})
}
