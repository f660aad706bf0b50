package billing

import (
	"log/slog"

	"github.com/maxfitai/billing/handler"
	"github.com/maxfitai/billing/pkg/binder"
	"github.com/maxfitai/billing/pkg/ratelimiter"
)

// Option configures the billing handlers.
type Option func(*options)

type options struct {
	logger          *slog.Logger
	maxWebhookBytes int64
	errorHandler    handler.ErrorHandler[handler.Context]
	limiter         ratelimiter.Limiter
}

// WithLogger sets the logger used by the default error handler.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxWebhookBytes caps webhook payload size.
func WithMaxWebhookBytes(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxWebhookBytes = n
		}
	}
}

// WithErrorHandler replaces the JSON error handler.
func WithErrorHandler(h handler.ErrorHandler[handler.Context]) Option {
	return func(o *options) {
		if h != nil {
			o.errorHandler = h
		}
	}
}

// WithRateLimiter throttles checkout and portal creation per user.
func WithRateLimiter(l ratelimiter.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

func newOptions(opts []Option) options {
	o := options{
		logger:          slog.Default(),
		maxWebhookBytes: binder.DefaultMaxJSONSize * 16,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.errorHandler == nil {
		o.errorHandler = handler.NewErrorHandler(o.logger, ClassifyError)
	}
	return o
}
