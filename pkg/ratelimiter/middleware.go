package ratelimiter

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/maxfitai/billing/pkg/logger"
)

// KeyFunc extracts the bucket key from a request. An empty key skips
// limiting.
type KeyFunc func(r *http.Request) string

// LimitHandler writes the response for a denied request.
type LimitHandler func(w http.ResponseWriter, r *http.Request, res *Result)

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middleware)

type middleware struct {
	logger  *slog.Logger
	limited LimitHandler
	now     func() time.Time
}

// WithLogger logs store failures.
func WithLogger(l *slog.Logger) MiddlewareOption {
	return func(m *middleware) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithLimitHandler replaces the plain-text 429 response.
func WithLimitHandler(h LimitHandler) MiddlewareOption {
	return func(m *middleware) {
		if h != nil {
			m.limited = h
		}
	}
}

// Middleware limits requests by key. It panics on a nil limiter or key
// function.
func Middleware(limiter Limiter, key KeyFunc, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if limiter == nil || key == nil {
		panic("ratelimiter: limiter and key func are required")
	}
	m := &middleware{
		logger: slog.New(slog.DiscardHandler),
		limited: func(w http.ResponseWriter, _ *http.Request, _ *Result) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			res, err := limiter.Allow(r.Context(), k)
			if err != nil {
				m.logger.WarnContext(r.Context(), "rate limit check failed, allowing request", logger.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(max(0, res.Remaining)))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed() {
				if wait := res.RetryAfter(m.now()); wait > 0 {
					h.Set("Retry-After", strconv.Itoa(int((wait+time.Second-1)/time.Second)))
				}
				m.limited(w, r, res)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
