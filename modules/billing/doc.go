// Package billing exposes the entitlement engine over HTTP.
//
// Webhook routes take the raw provider payload so signatures are checked
// against the exact bytes received:
//
//	POST /webhooks/stripe
//	POST /webhooks/paypal
//
// Authenticated routes read the caller from the JWT subject:
//
//	POST /billing/checkout/stripe          {"plan":"starter","interval":"monthly"}
//	POST /billing/checkout/paypal          {"plan":"proFit","isAnnual":true}
//	POST /billing/portal
//	POST /billing/activate-paypal-subscription {"subscriptionId":"I-..."}
//	GET  /billing/entitlement
//
// Errors use the handler package's JSON envelope with codes from
// ClassifyError.
package billing
