// Package clientip resolves the address a request came from so webhook
// deliveries and API calls can be logged with their origin.
//
// Headers are consulted in the order given, falling back to RemoteAddr.
// X-Forwarded-For contributes its first valid entry. Only list headers
// that the edge proxy in front of the service overwrites; a client can
// send any of them directly.
//
//	r.Use(clientip.Middleware(clientip.DefaultHeaders...))
//	log := logger.New(logger.WithContextExtractors(clientip.LoggerExtractor()))
package clientip
