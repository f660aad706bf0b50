package ratelimiter

import "time"

// Result is the outcome of one Allow call.
type Result struct {
	Limit     int
	Remaining int // negative when denied
	ResetAt   time.Time
}

// Allowed reports whether the request may proceed.
func (r *Result) Allowed() bool {
	return r.Remaining >= 0
}

// RetryAfter is the wait until the next refill, or 0 when allowed.
func (r *Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed() {
		return 0
	}
	return max(0, r.ResetAt.Sub(now))
}

// Config is the bucket shape. Checkout creation defaults to a burst of 5
// and one token per minute.
type Config struct {
	Capacity       int           `env:"RATE_LIMIT_CAPACITY" envDefault:"5"`
	RefillRate     int           `env:"RATE_LIMIT_REFILL_RATE" envDefault:"1"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL" envDefault:"1m"`
}
