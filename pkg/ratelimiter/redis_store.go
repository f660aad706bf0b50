package ratelimiter

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript refills and consumes atomically. State is a hash of the
// token balance and the last refill mark in unix milliseconds.
var takeScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local interval = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local want = tonumber(ARGV[5])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'refill')
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if tokens == nil or last == nil then
	tokens = capacity
	last = now
end

if now > last then
	local intervals = math.floor((now - last) / interval)
	if intervals > 0 then
		local ceiling = math.floor(capacity / rate) + 1
		tokens = math.min(tokens + math.min(intervals, ceiling) * rate, capacity)
		last = last + intervals * interval
	end
end

local remaining = tokens - want
if remaining >= 0 then
	tokens = remaining
end
redis.call('HSET', KEYS[1], 'tokens', tokens, 'refill', last)
redis.call('PEXPIRE', KEYS[1], (math.floor(capacity / rate) + 1) * interval)
return {remaining, last + interval}
`)

// RedisStore keeps buckets in Redis.
type RedisStore struct {
	client redis.Scripter
	prefix string
	now    func() time.Time
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix sets the key namespace. Defaults to "ratelimit:".
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// WithRedisClock overrides time.Now.
func WithRedisClock(now func() time.Time) RedisStoreOption {
	return func(s *RedisStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewRedisStore panics on a nil client.
func NewRedisStore(client redis.Scripter, opts ...RedisStoreOption) *RedisStore {
	if client == nil {
		panic("ratelimiter: redis client is required")
	}
	s := &RedisStore{client: client, prefix: "ratelimit:", now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Take(ctx context.Context, key string, tokens int, cfg Config) (int, time.Time, error) {
	vals, err := takeScript.Run(ctx, s.client, []string{s.prefix + key},
		cfg.Capacity,
		cfg.RefillRate,
		cfg.RefillInterval.Milliseconds(),
		s.now().UnixMilli(),
		tokens,
	).Int64Slice()
	if err != nil {
		return 0, time.Time{}, errors.Join(ErrStoreUnavailable, err)
	}
	if len(vals) != 2 {
		return 0, time.Time{}, ErrStoreUnavailable
	}
	return int(vals[0]), time.UnixMilli(vals[1]), nil
}
