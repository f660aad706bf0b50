// Package requestid attaches a correlation id to every HTTP request.
//
// Middleware reuses a valid X-Request-ID header, then a provider delivery id
// such as Paypal-Transmission-Id, and finally generates a UUID. The id is
// echoed in the X-Request-ID response header and stored in the request
// context, where LoggerExtractor adds it to every log record:
//
//	log := logger.New(logger.WithContextExtractors(requestid.LoggerExtractor()))
//	r.Use(requestid.Middleware)
package requestid
