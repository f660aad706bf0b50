// Package logger builds the service's *slog.Logger.
//
// New takes functional options: output format and level, static attributes,
// and context extractors that copy request-scoped values (request id,
// environment) onto every record. WithEnvironment picks sensible defaults
// per deployment and FromConfig applies LOG_LEVEL / LOG_FORMAT overrides.
//
// The attribute helpers (Provider, EventKind, SubscriptionID, ErrorCode, ...)
// keep billing log lines consistent so reconciliation failures can be found
// by grepping a single key:
//
//	log.WarnContext(ctx, "billing event unresolved",
//		logger.Provider("paypal"),
//		logger.EventType("PAYMENT.SALE.COMPLETED"),
//		logger.ErrorCode("not_found"),
//	)
package logger
