package ratelimiter

import (
	"context"
	"time"
)

// Store keeps bucket state.
type Store interface {
	// Take refills the bucket for key, then removes tokens if enough are
	// left. remaining is the balance after the call, or the shortfall as a
	// negative number when the request is denied.
	Take(ctx context.Context, key string, tokens int, cfg Config) (remaining int, resetAt time.Time, err error)
}

// refill returns the balance and refill mark after the intervals elapsed
// since last. Tokens never exceed capacity.
func refill(tokens int, last, now time.Time, cfg Config) (int, time.Time) {
	if now.Before(last) {
		return tokens, last
	}
	intervals := int64(now.Sub(last) / cfg.RefillInterval)
	if intervals <= 0 {
		return tokens, last
	}
	ceiling := int64(cfg.Capacity/cfg.RefillRate + 1)
	added := min(intervals, ceiling) * int64(cfg.RefillRate)
	return int(min(int64(tokens)+added, int64(cfg.Capacity))), last.Add(time.Duration(intervals) * cfg.RefillInterval)
}
