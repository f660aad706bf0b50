// Package paypal is a small client for the PayPal REST endpoints used by
// subscription billing: catalog products, billing plans and subscriptions.
//
// Requests are authenticated with OAuth2 client credentials and retried on
// transient failures. The package also verifies webhook transmissions
// locally using PayPal's signing certificate.
//
//	client, err := paypal.New(cfg, paypal.WithLogger(log))
//	sub, err := client.GetSubscription(ctx, "I-BW452GLLEP1G")
//
//	verifier := paypal.NewWebhookVerifier(cfg.WebhookID)
//	if err := verifier.Verify(ctx, r.Header, body); err != nil { ... }
package paypal
