// Package handler provides typed HTTP handlers for the billing API.
//
// A HandlerFunc receives a bound request value and returns a Response.
// Wrap adapts it to http.HandlerFunc, running binders first and routing
// errors to a single ErrorHandler that writes a JSON envelope:
//
//	errs := handler.NewErrorHandler(log, billingErrors)
//	r.Post("/billing/checkout/stripe", handler.Wrap(checkout,
//		handler.WithBinders[handler.Context, CheckoutRequest](binder.JSON()),
//		handler.WithErrorHandler[handler.Context, CheckoutRequest](errs),
//	))
//
// Successful responses use the {"data": ...} envelope from JSON. Errors use
// {"error": {"code", "message", "details"}} with the request id in meta.
package handler
