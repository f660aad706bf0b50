// Package billing reconciles Stripe and PayPal subscription events into a
// per-user AI-call entitlement.
//
// Provider webhooks are verified and normalized by an Adapter into an
// Event with one of five kinds. The Resolver attributes the event to a
// user, and the Reconciler applies it under a per-user lock: activations
// and renewals add the plan's quota delta, cancellations drop the user to
// the free tier while keeping earned quota, and plan changes sync the
// stored plan without granting quota. Every applied event is recorded in
// a processed-event ledger in the same transaction as the entitlement
// write, so redelivered webhooks are no-ops.
//
// Quota is either a finite number of calls or Unlimited. Unlimited absorbs
// any addition and is stored as -1.
//
// Basic usage:
//
//	catalog, _ := billing.NewCatalogFromConfig(cfg.Catalog)
//	svc := billing.NewService(store, catalog,
//		billing.WithStripe(stripeProvider),
//		billing.WithPayPal(paypalProvider),
//		billing.WithLogger(log),
//	)
//
//	res, err := svc.HandleWebhook(ctx, billing.ProviderStripe, body, r.Header)
//	if err != nil {
//		// unverified delivery: answer non-2xx
//	}
//	_ = res.Code // "applied", "duplicate_event", "ignored", ...
package billing
