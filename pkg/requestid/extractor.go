package requestid

import (
	"context"
	"log/slog"

	"github.com/maxfitai/billing/pkg/logger"
)

// LoggerExtractor adds request_id to records logged with a request context.
func LoggerExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id := FromContext(ctx); id != "" {
			return logger.RequestID(id), true
		}
		return slog.Attr{}, false
	}
}
