package billing_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxfitai/billing/pkg/billing"
	"github.com/maxfitai/billing/pkg/logger"
)

type serviceFixture struct {
	svc    billing.Service
	store  *billing.MemoryStore
	stripe *fakeStripeAPI
	paypal *paypalFixture
	reg    *prometheus.Registry
	logs   *bytes.Buffer
}

func newServiceFixture(t *testing.T, store billing.Store) *serviceFixture {
	t.Helper()

	mem := billing.NewMemoryStore()
	for _, id := range []string{"u1", "u2"} {
		require.NoError(t, mem.Insert(context.Background(), billing.NewEntitlement(id, id+"@example.com")))
	}
	if store == nil {
		store = mem
	}

	reg := prometheus.NewRegistry()
	obs, err := billing.NewPrometheusObserver(reg)
	require.NoError(t, err)

	api := &fakeStripeAPI{}
	pp := newPayPalFixture(t)
	catalog := testCatalog()
	logs := &bytes.Buffer{}

	svc := billing.NewService(store, catalog,
		billing.WithStripe(billing.NewStripeProvider(api, catalog, billing.StripeConfig{WebhookSecret: testStripeSecret}, "https://app.test")),
		billing.WithPayPal(pp.provider),
		billing.WithObserver(obs),
		billing.WithLogger(logger.New(logger.WithOutput(logs), logger.WithFormat(logger.FormatJSON), logger.WithLevel(slog.LevelDebug))),
	)
	return &serviceFixture{svc: svc, store: mem, stripe: api, paypal: pp, reg: reg, logs: logs}
}

func (f *serviceFixture) stripeCheckout(t *testing.T, eventID, user string, plan billing.PlanTier, sub string) ([]byte, http.Header) {
	t.Helper()
	tok, err := billing.NewIdentityToken(user, plan, billing.IntervalMonthly)
	require.NoError(t, err)
	payload := stripeEvent(t, eventID, "checkout.session.completed", map[string]any{
		"id":                  "cs_" + eventID,
		"mode":                "subscription",
		"client_reference_id": user,
		"customer":            "cus_" + user,
		"subscription":        sub,
		"metadata":            tok.StripeMetadata(),
	})
	return payload, stripeSign(t, payload, testStripeSecret)
}

func TestService_HandleWebhook_StripeLifecycle(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, nil)
	ctx := context.Background()

	payload, header := f.stripeCheckout(t, "evt_1", "u1", billing.PlanStarter, "sub_1")
	res, err := f.svc.HandleWebhook(ctx, billing.ProviderStripe, payload, header)
	require.NoError(t, err)
	assert.Equal(t, billing.CodeApplied, res.Code)
	assert.Equal(t, "u1", res.UserID)
	require.NotNil(t, res.Entitlement)
	assert.Equal(t, billing.Limited(6), res.Entitlement.MaxAICalls)

	// Redelivery with a fresh signature.
	payload, header = f.stripeCheckout(t, "evt_1", "u1", billing.PlanStarter, "sub_1")
	res, err = f.svc.HandleWebhook(ctx, billing.ProviderStripe, payload, header)
	require.NoError(t, err)
	assert.Equal(t, billing.CodeDuplicate, res.Code)

	renew := stripeEvent(t, "evt_2", "invoice.payment_succeeded", map[string]any{
		"id": "in_2", "customer": "cus_u1", "billing_reason": "subscription_cycle",
		"parent": map[string]any{"subscription_details": map[string]any{"subscription": "sub_1"}},
		"lines": map[string]any{"data": []any{
			map[string]any{"pricing": map[string]any{"price_details": map[string]any{"price": "price_starter"}}},
		}},
	})
	res, err = f.svc.HandleWebhook(ctx, billing.ProviderStripe, renew, stripeSign(t, renew, testStripeSecret))
	require.NoError(t, err)
	assert.Equal(t, billing.CodeApplied, res.Code)
	assert.Equal(t, billing.Limited(11), res.Entitlement.MaxAICalls)

	cancel := stripeEvent(t, "evt_3", "customer.subscription.deleted", map[string]any{"id": "sub_1", "customer": "cus_u1"})
	res, err = f.svc.HandleWebhook(ctx, billing.ProviderStripe, cancel, stripeSign(t, cancel, testStripeSecret))
	require.NoError(t, err)
	assert.Equal(t, billing.CodeApplied, res.Code)
	assert.Equal(t, billing.PlanFree, res.Entitlement.Plan)
	assert.Equal(t, billing.Limited(11), res.Entitlement.MaxAICalls)

	require.NoError(t, testutil.GatherAndCompare(f.reg, strings.NewReader(`
# HELP billing_quota_grants_total Quota grants applied to entitlements.
# TYPE billing_quota_grants_total counter
billing_quota_grants_total{plan="starter",provider="stripe"} 2
`), "billing_quota_grants_total"))
	assert.Contains(t, f.logs.String(), `"code":"duplicate_event"`)
}

func TestService_HandleWebhook_Failures(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, nil)
	ctx := context.Background()

	payload, _ := f.stripeCheckout(t, "evt_1", "u1", billing.PlanStarter, "sub_1")
	res, err := f.svc.HandleWebhook(ctx, billing.ProviderStripe, payload, http.Header{"Stripe-Signature": {"t=1,v1=bad"}})
	require.ErrorIs(t, err, billing.ErrVerificationFailed)
	assert.Equal(t, billing.CodeVerificationFailure, res.Code)

	_, err = f.svc.HandleWebhook(ctx, "square", payload, http.Header{})
	require.ErrorIs(t, err, billing.ErrUnknownProvider)

	payload, header := f.stripeCheckout(t, "evt_9", "ghost", billing.PlanStarter, "sub_9")
	res, err = f.svc.HandleWebhook(ctx, billing.ProviderStripe, payload, header)
	require.NoError(t, err, "unknown users are acknowledged")
	assert.Equal(t, billing.CodeNotFound, res.Code)

	body := paypalEvent(t, "WH-1", "BILLING.SUBSCRIPTION.CANCELLED", map[string]any{"id": "I-none"})
	res, err = f.svc.HandleWebhook(ctx, billing.ProviderPayPal, body, f.paypal.signer.Sign(t, body))
	require.NoError(t, err)
	assert.Equal(t, billing.CodeNotFound, res.Code)

	require.NoError(t, testutil.GatherAndCompare(f.reg, strings.NewReader(`
# HELP billing_webhook_events_total Webhook deliveries by provider, event kind and outcome code.
# TYPE billing_webhook_events_total counter
billing_webhook_events_total{kind="activated",outcome="not_found",provider="stripe"} 1
billing_webhook_events_total{kind="cancelled",outcome="not_found",provider="paypal"} 1
billing_webhook_events_total{kind="unknown",outcome="verification_failure",provider="stripe"} 1
`), "billing_webhook_events_total"))
}

func TestService_HandleWebhook_VerifiedFailuresAreAcknowledged(t *testing.T) {
	t.Parallel()

	mem := billing.NewMemoryStore()
	require.NoError(t, mem.Insert(context.Background(), billing.NewEntitlement("u1", "")))
	f := newServiceFixture(t, failingStore{mem})

	payload, header := f.stripeCheckout(t, "evt_1", "u1", billing.PlanStarter, "sub_1")
	res, err := f.svc.HandleWebhook(context.Background(), billing.ProviderStripe, payload, header)
	require.NoError(t, err)
	assert.Equal(t, billing.CodeInternal, res.Code)
	require.ErrorIs(t, res.Err, errDown)
	assert.Contains(t, f.logs.String(), `"level":"ERROR"`)

	unconfigured := billing.NewService(mem, testCatalog(),
		billing.WithStripe(billing.NewStripeProvider(&fakeStripeAPI{}, testCatalog(), billing.StripeConfig{}, "https://app.test")),
	)
	res, err = unconfigured.HandleWebhook(context.Background(), billing.ProviderStripe, payload, header)
	require.ErrorIs(t, err, billing.ErrMissingConfiguration)
	assert.Equal(t, billing.CodeMissingConfiguration, res.Code)
	assert.False(t, billing.IsSoft(err))
}

func TestService_HandleWebhook_PayPalSuspendAndReactivate(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, nil)
	ctx := context.Background()
	tok, err := billing.NewIdentityToken("u1", billing.PlanProFit, billing.IntervalMonthly)
	require.NoError(t, err)

	deliver := func(id, typ string, resource map[string]any) billing.WebhookResult {
		t.Helper()
		body := paypalEvent(t, id, typ, resource)
		res, err := f.svc.HandleWebhook(ctx, billing.ProviderPayPal, body, f.paypal.signer.Sign(t, body))
		require.NoError(t, err)
		return res
	}
	subscription := map[string]any{"id": "I-1", "status": "ACTIVE", "custom_id": tok.Encode()}

	assert.Equal(t, billing.CodeApplied, deliver("WH-1", "BILLING.SUBSCRIPTION.ACTIVATED", subscription).Code)
	assert.Equal(t, billing.CodeApplied, deliver("WH-2", "BILLING.SUBSCRIPTION.SUSPENDED", map[string]any{"id": "I-1", "status": "SUSPENDED"}).Code)
	assert.Equal(t, billing.CodeApplied, deliver("WH-3", "BILLING.SUBSCRIPTION.ACTIVATED", subscription).Code)
	assert.Equal(t, billing.CodeDuplicate, deliver("WH-3", "BILLING.SUBSCRIPTION.ACTIVATED", subscription).Code)
	assert.Equal(t, billing.CodeApplied, deliver("WH-4", "PAYMENT.SALE.COMPLETED", map[string]any{"id": "SALE-1", "billing_agreement_id": "I-1"}).Code)

	ent, err := f.svc.Entitlement(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, billing.PlanProFit, ent.Plan)
	assert.Equal(t, "I-1", ent.PayPalSubscriptionID)
	assert.Equal(t, billing.Limited(61), ent.MaxAICalls)
}

func TestService_ActivatePayPalSubscription(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, nil)
	ctx := context.Background()

	link, err := f.svc.CreateCheckout(ctx, billing.CheckoutParams{
		Provider: billing.ProviderPayPal, UserID: "u1", Plan: billing.PlanProFit, Interval: billing.IntervalMonthly,
	})
	require.NoError(t, err)

	_, err = f.svc.ActivatePayPalSubscription(ctx, "u1", link.SubscriptionID)
	require.ErrorIs(t, err, billing.ErrSubscriptionNotActive)

	require.True(t, f.paypal.server.SetStatus(link.SubscriptionID, "ACTIVE"))

	_, err = f.svc.ActivatePayPalSubscription(ctx, "u2", link.SubscriptionID)
	require.ErrorIs(t, err, billing.ErrIdentityMismatch)

	ent, err := f.svc.ActivatePayPalSubscription(ctx, "u1", link.SubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, billing.PlanProFit, ent.Plan)
	assert.Equal(t, billing.Limited(21), ent.MaxAICalls)
	assert.Equal(t, link.SubscriptionID, ent.PayPalSubscriptionID)

	// The webhook for the same activation arrives afterwards.
	tok, err := billing.NewIdentityToken("u1", billing.PlanProFit, billing.IntervalMonthly)
	require.NoError(t, err)
	body := paypalEvent(t, "WH-ACT", "BILLING.SUBSCRIPTION.ACTIVATED", map[string]any{
		"id": link.SubscriptionID, "status": "ACTIVE", "custom_id": tok.Encode(),
	})
	res, err := f.svc.HandleWebhook(ctx, billing.ProviderPayPal, body, f.paypal.signer.Sign(t, body))
	require.NoError(t, err)
	assert.Equal(t, billing.CodeDuplicate, res.Code)

	// Calling activation again is idempotent too.
	ent, err = f.svc.ActivatePayPalSubscription(ctx, "u1", link.SubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, billing.Limited(21), ent.MaxAICalls)
}

func TestService_CreateCheckoutAndPortal(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, nil)
	ctx := context.Background()

	link, err := f.svc.CreateCheckout(ctx, billing.CheckoutParams{
		Provider: billing.ProviderStripe, UserID: "u1", Plan: billing.PlanStarter, Interval: billing.IntervalMonthly,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, link.URL)
	assert.Equal(t, "u1@example.com", *f.stripe.checkout.CustomerEmail)

	_, err = f.svc.CreateCheckout(ctx, billing.CheckoutParams{
		Provider: billing.ProviderStripe, UserID: "u1", Plan: billing.PlanFree, Interval: billing.IntervalMonthly,
	})
	assert.ErrorIs(t, err, billing.ErrInvalidPlan)

	_, err = f.svc.CreateCheckout(ctx, billing.CheckoutParams{
		Provider: billing.ProviderStripe, UserID: "ghost", Plan: billing.PlanStarter, Interval: billing.IntervalMonthly,
	})
	assert.ErrorIs(t, err, billing.ErrUserNotFound)

	_, err = f.svc.CreatePortalLink(ctx, "u1")
	assert.ErrorIs(t, err, billing.ErrNoProviderCustomer)

	payload, header := f.stripeCheckout(t, "evt_1", "u1", billing.PlanStarter, "sub_1")
	_, err = f.svc.HandleWebhook(ctx, billing.ProviderStripe, payload, header)
	require.NoError(t, err)

	portal, err := f.svc.CreatePortalLink(ctx, "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, portal.URL)
	assert.Equal(t, "cus_u1", *f.stripe.portal.Customer)
}

func TestService_MissingProviders(t *testing.T) {
	t.Parallel()

	svc := billing.NewService(billing.NewMemoryStore(), billing.NewCatalog())
	ctx := context.Background()

	_, err := svc.HandleWebhook(ctx, billing.ProviderStripe, []byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, billing.ErrUnknownProvider)

	_, err = svc.ActivatePayPalSubscription(ctx, "u1", "I-1")
	assert.ErrorIs(t, err, billing.ErrMissingConfiguration)

	_, err = svc.CreatePortalLink(ctx, "u1")
	assert.ErrorIs(t, err, billing.ErrMissingConfiguration)

	_, err = svc.CreateCheckout(ctx, billing.CheckoutParams{Provider: billing.ProviderPayPal, UserID: "u1", Plan: billing.PlanStarter})
	assert.ErrorIs(t, err, billing.ErrMissingConfiguration)
}
