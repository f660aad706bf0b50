package billing_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/maxfitai/billing/pkg/billing"
)

const testStripeSecret = "whsec_test_secret"

type fakeStripeAPI struct {
	subs        map[string]*stripe.Subscription
	retrieveErr error
	retrieves   atomic.Int32
	checkout    *stripe.CheckoutSessionCreateParams
	portal      *stripe.BillingPortalSessionCreateParams
}

func (f *fakeStripeAPI) RetrieveSubscription(_ context.Context, id string) (*stripe.Subscription, error) {
	f.retrieves.Add(1)
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	sub, ok := f.subs[id]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	return sub, nil
}

func (f *fakeStripeAPI) CreateCheckoutSession(_ context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error) {
	f.checkout = params
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1", ExpiresAt: time.Now().Add(time.Hour).Unix()}, nil
}

func (f *fakeStripeAPI) CreatePortalSession(_ context.Context, params *stripe.BillingPortalSessionCreateParams) (*stripe.BillingPortalSession, error) {
	f.portal = params
	return &stripe.BillingPortalSession{URL: "https://billing.stripe.com/p/session/test"}, nil
}

func stripeSubscription(id, priceID string, periodEnd int64) *stripe.Subscription {
	return &stripe.Subscription{
		ID:     id,
		Status: stripe.SubscriptionStatusActive,
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{
			{Price: &stripe.Price{ID: priceID}, CurrentPeriodEnd: periodEnd},
		}},
	}
}

func testCatalog() *billing.Catalog {
	return billing.NewCatalog(
		billing.WithPriceIdentifier(billing.ProviderStripe, billing.PlanStarter, billing.IntervalMonthly, "price_starter"),
		billing.WithPriceIdentifier(billing.ProviderStripe, billing.PlanProFit, billing.IntervalMonthly, "price_profit"),
		billing.WithPriceIdentifier(billing.ProviderStripe, billing.PlanMaxFlex, billing.IntervalAnnual, "price_maxflex_y"),
	)
}

func newStripeProvider(api *fakeStripeAPI) *billing.StripeProvider {
	return billing.NewStripeProvider(api, testCatalog(), billing.StripeConfig{
		WebhookSecret: testStripeSecret,
		FetchTimeout:  time.Second,
	}, "https://app.test")
}

func stripeEvent(t *testing.T, id, typ string, object any) []byte {
	t.Helper()
	obj, err := json.Marshal(object)
	require.NoError(t, err)
	b, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        typ,
		"created":     time.Now().Unix(),
		"api_version": "2020-08-27",
		"data":        map[string]json.RawMessage{"object": obj},
	})
	require.NoError(t, err)
	return b
}

func stripeSign(t *testing.T, payload []byte, secret string) http.Header {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	h := http.Header{}
	h.Set("Stripe-Signature", signed.Header)
	return h
}

func TestStripeProvider_Verification(t *testing.T) {
	t.Parallel()

	p := newStripeProvider(&fakeStripeAPI{})
	payload := stripeEvent(t, "evt_1", "customer.subscription.deleted", map[string]any{"id": "sub_1"})

	_, err := p.VerifyAndNormalize(context.Background(), payload, http.Header{})
	assert.ErrorIs(t, err, billing.ErrVerificationFailed)

	_, err = p.VerifyAndNormalize(context.Background(), payload, stripeSign(t, payload, "whsec_wrong"))
	assert.ErrorIs(t, err, billing.ErrVerificationFailed)

	tampered := stripeEvent(t, "evt_1", "customer.subscription.deleted", map[string]any{"id": "sub_2"})
	_, err = p.VerifyAndNormalize(context.Background(), tampered, stripeSign(t, payload, testStripeSecret))
	assert.ErrorIs(t, err, billing.ErrVerificationFailed)

	unconfigured := billing.NewStripeProvider(&fakeStripeAPI{}, testCatalog(), billing.StripeConfig{}, "")
	_, err = unconfigured.VerifyAndNormalize(context.Background(), payload, stripeSign(t, payload, testStripeSecret))
	assert.ErrorIs(t, err, billing.ErrMissingConfiguration)
}

func TestStripeProvider_CheckoutCompleted(t *testing.T) {
	t.Parallel()

	tok, err := billing.NewIdentityToken("u1", billing.PlanProFit, billing.IntervalMonthly)
	require.NoError(t, err)

	p := newStripeProvider(&fakeStripeAPI{})
	payload := stripeEvent(t, "evt_cs", "checkout.session.completed", map[string]any{
		"id":                  "cs_1",
		"mode":                "subscription",
		"client_reference_id": "u1",
		"customer":            "cus_1",
		"subscription":        map[string]any{"id": "sub_1", "object": "subscription"},
		"metadata":            tok.StripeMetadata(),
	})

	ev, err := p.VerifyAndNormalize(context.Background(), payload, stripeSign(t, payload, testStripeSecret))
	require.NoError(t, err)
	assert.Equal(t, billing.KindActivated, ev.Kind)
	assert.Equal(t, "u1", ev.UserID)
	assert.Equal(t, billing.PlanProFit, ev.Plan)
	assert.Equal(t, "sub_1", ev.SubscriptionID)
	assert.Equal(t, "cus_1", ev.CustomerID)
	assert.Equal(t, "stripe:sub_1:activated", ev.IdempotencyKey())
}

func TestStripeProvider_CheckoutCompletedDeferredPlan(t *testing.T) {
	t.Parallel()

	api := &fakeStripeAPI{subs: map[string]*stripe.Subscription{
		"sub_1": stripeSubscription("sub_1", "price_maxflex_y", time.Now().Add(365*24*time.Hour).Unix()),
	}}
	p := newStripeProvider(api)
	payload := stripeEvent(t, "evt_cs", "checkout.session.completed", map[string]any{
		"id":                  "cs_1",
		"mode":                "subscription",
		"client_reference_id": "u1",
		"customer":            "cus_1",
		"subscription":        "sub_1",
	})

	ev, err := p.VerifyAndNormalize(context.Background(), payload, stripeSign(t, payload, testStripeSecret))
	require.NoError(t, err)
	assert.Equal(t, billing.PlanMaxFlex, ev.Plan)
	assert.Equal(t, billing.IntervalAnnual, ev.Interval)
	assert.NotNil(t, ev.PeriodEnd)
	assert.Equal(t, int32(1), api.retrieves.Load())
}

func TestStripeProvider_CheckoutCompletedUnresolved(t *testing.T) {
	t.Parallel()

	t.Run("no client reference", func(t *testing.T) {
		t.Parallel()
		p := newStripeProvider(&fakeStripeAPI{})
		payload := stripeEvent(t, "evt_cs", "checkout.session.completed", map[string]any{
			"id": "cs_1", "mode": "subscription", "subscription": "sub_1",
		})
		_, err := p.VerifyAndNormalize(context.Background(), payload, stripeSign(t, payload, testStripeSecret))
		assert.ErrorIs(t, err, billing.ErrUnresolvedEvent)
	})

	t.Run("subscription fetch fails", func(t *testing.T) {
		t.Parallel()
		p := newStripeProvider(&fakeStripeAPI{retrieveErr: errors.New("timeout")})
		payload := stripeEvent(t, "evt_cs", "checkout.session.completed", map[string]any{
			"id": "cs_1", "mode": "subscription", "client_reference_id": "u1", "subscription": "sub_1",
		})
		_, err := p.VerifyAndNormalize(context.Background(), payload, stripeSign(t, payload, testStripeSecret))
		assert.ErrorIs(t, err, billing.ErrUnresolvedEvent)
		assert.ErrorIs(t, err, billing.ErrProviderAPI)
		assert.True(t, billing.IsSoft(err))
	})

	t.Run("unknown price", func(t *testing.T) {
		t.Parallel()
		api := &fakeStripeAPI{subs: map[string]*stripe.Subscription{"sub_1": stripeSubscription("sub_1", "price_other", 0)}}
		p := newStripeProvider(api)
		payload := stripeEvent(t, "evt_cs", "checkout.session.completed", map[string]any{
			"id": "cs_1", "mode": "subscription", "client_reference_id": "u1", "subscription": "sub_1",
		})
		_, err := p.VerifyAndNormalize(context.Background(), payload, stripeSign(t, payload, testStripeSecret))
		assert.ErrorIs(t, err, billing.ErrUnresolvedEvent)
	})

	t.Run("no subscription", func(t *testing.T) {
		t.Parallel()
		tok, err := billing.NewIdentityToken("u1", billing.PlanStarter, billing.IntervalMonthly)
		require.NoError(t, err)
		p := newStripeProvider(&fakeStripeAPI{})
		payload := stripeEvent(t, "evt_cs", "checkout.session.completed", map[string]any{
			"id": "cs_1", "mode": "subscription", "client_reference_id": "u1", "metadata": tok.StripeMetadata(),
		})
		_, err = p.VerifyAndNormalize(context.Background(), payload, stripeSign(t, payload, testStripeSecret))
		assert.ErrorIs(t, err, billing.ErrUnresolvedEvent)
	})

	t.Run("missing mode ignored", func(t *testing.T) {
		t.Parallel()
		p := newStripeProvider(&fakeStripeAPI{})
		payload := stripeEvent(t, "evt_cs", "checkout.session.completed", map[string]any{
			"id": "cs_1", "client_reference_id": "u1", "subscription": "sub_1",
		})
		_, err := p.VerifyAndNormalize(context.Background(), payload, stripeSign(t, payload, testStripeSecret))
		assert.ErrorIs(t, err, billing.ErrEventIgnored)
	})

	t.Run("payment mode ignored", func(t *testing.T) {
		t.Parallel()
		p := newStripeProvider(&fakeStripeAPI{})
		payload := stripeEvent(t, "evt_cs", "checkout.session.completed", map[string]any{
			"id": "cs_1", "mode": "payment", "client_reference_id": "u1",
		})
		_, err := p.VerifyAndNormalize(context.Background(), payload, stripeSign(t, payload, testStripeSecret))
		assert.ErrorIs(t, err, billing.ErrEventIgnored)
	})
}

func TestStripeProvider_InvoicePaymentSucceeded(t *testing.T) {
	t.Parallel()

	p := newStripeProvider(&fakeStripeAPI{})

	cycle := stripeEvent(t, "evt_inv", "invoice.payment_succeeded", map[string]any{
		"id":             "in_1",
		"customer":       "cus_1",
		"billing_reason": "subscription_cycle",
		"parent": map[string]any{
			"subscription_details": map[string]any{"subscription": "sub_1"},
		},
		"lines": map[string]any{"data": []any{
			map[string]any{
				"pricing": map[string]any{"price_details": map[string]any{"price": "price_profit"}},
				"period":  map[string]any{"end": time.Now().Add(30 * 24 * time.Hour).Unix()},
			},
		}},
	})
	ev, err := p.VerifyAndNormalize(context.Background(), cycle, stripeSign(t, cycle, testStripeSecret))
	require.NoError(t, err)
	assert.Equal(t, billing.KindRecurringPayment, ev.Kind)
	assert.Equal(t, "sub_1", ev.SubscriptionID)
	assert.Equal(t, billing.PlanProFit, ev.Plan)
	assert.Equal(t, "stripe:sub_1:renewal:in_1", ev.IdempotencyKey())
	require.NotNil(t, ev.PeriodEnd)

	expanded := stripeEvent(t, "evt_inv2", "invoice.payment_succeeded", map[string]any{
		"id":             "in_2",
		"customer":       map[string]any{"id": "cus_1", "object": "customer"},
		"billing_reason": "subscription_cycle",
		"lines": map[string]any{"data": []any{
			map[string]any{
				"parent": map[string]any{
					"type":                      "subscription_item_details",
					"subscription_item_details": map[string]any{"subscription": "sub_2", "subscription_item": "si_2"},
				},
				"pricing": map[string]any{"price_details": map[string]any{"price": "price_starter"}},
			},
		}},
	})
	ev, err = p.VerifyAndNormalize(context.Background(), expanded, stripeSign(t, expanded, testStripeSecret))
	require.NoError(t, err)
	assert.Equal(t, "sub_2", ev.SubscriptionID)
	assert.Equal(t, "cus_1", ev.CustomerID)
	assert.Equal(t, billing.PlanStarter, ev.Plan)
	assert.Nil(t, ev.PeriodEnd)

	first := stripeEvent(t, "evt_inv0", "invoice.payment_succeeded", map[string]any{
		"id": "in_0", "billing_reason": "subscription_create", "subscription": "sub_1",
	})
	_, err = p.VerifyAndNormalize(context.Background(), first, stripeSign(t, first, testStripeSecret))
	assert.ErrorIs(t, err, billing.ErrEventIgnored)
}

func TestStripeProvider_SubscriptionEvents(t *testing.T) {
	t.Parallel()

	p := newStripeProvider(&fakeStripeAPI{})

	updated := stripeEvent(t, "evt_upd", "customer.subscription.updated", map[string]any{
		"id":                   "sub_1",
		"customer":             "cus_1",
		"status":               "active",
		"cancel_at_period_end": true,
		"items": map[string]any{"data": []any{
			map[string]any{"price": map[string]any{"id": "price_starter"}, "current_period_end": time.Now().Unix() + 3600},
		}},
	})
	ev, err := p.VerifyAndNormalize(context.Background(), updated, stripeSign(t, updated, testStripeSecret))
	require.NoError(t, err)
	assert.Equal(t, billing.KindPlanChanged, ev.Kind)
	assert.Equal(t, billing.PlanStarter, ev.Plan)
	assert.True(t, ev.CancelAtPeriodEnd)
	assert.Equal(t, "stripe:sub_1:plan_sync:evt_upd", ev.IdempotencyKey())

	pastDue := stripeEvent(t, "evt_pd", "customer.subscription.updated", map[string]any{"id": "sub_1", "status": "past_due"})
	_, err = p.VerifyAndNormalize(context.Background(), pastDue, stripeSign(t, pastDue, testStripeSecret))
	assert.ErrorIs(t, err, billing.ErrEventIgnored)

	deleted := stripeEvent(t, "evt_del", "customer.subscription.deleted", map[string]any{"id": "sub_1", "customer": "cus_1", "status": "canceled"})
	ev, err = p.VerifyAndNormalize(context.Background(), deleted, stripeSign(t, deleted, testStripeSecret))
	require.NoError(t, err)
	assert.Equal(t, billing.KindCancelled, ev.Kind)
	assert.Equal(t, "stripe:sub_1:cancelled", ev.IdempotencyKey())

	other := stripeEvent(t, "evt_x", "customer.created", map[string]any{"id": "cus_1"})
	_, err = p.VerifyAndNormalize(context.Background(), other, stripeSign(t, other, testStripeSecret))
	assert.ErrorIs(t, err, billing.ErrEventIgnored)
}

func TestStripeProvider_CreateCheckout(t *testing.T) {
	t.Parallel()

	api := &fakeStripeAPI{}
	p := newStripeProvider(api)
	tok, err := billing.NewIdentityToken("u1", billing.PlanStarter, billing.IntervalMonthly)
	require.NoError(t, err)

	link, err := p.CreateCheckout(context.Background(), billing.CheckoutRequest{Token: tok, Email: "u1@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", link.SessionID)
	assert.Contains(t, link.URL, "checkout.stripe.com")
	require.NotNil(t, link.ExpiresAt)

	params := api.checkout
	require.NotNil(t, params)
	assert.Equal(t, "subscription", *params.Mode)
	assert.Equal(t, "price_starter", *params.LineItems[0].Price)
	assert.Equal(t, "u1", *params.ClientReferenceID)
	assert.Equal(t, "u1@example.com", *params.CustomerEmail)
	assert.Nil(t, params.Customer)
	assert.Equal(t, tok.Encode(), params.SubscriptionData.Metadata["identity"])
	assert.True(t, *params.AllowPromotionCodes)
	assert.Contains(t, *params.SuccessURL, "https://app.test/dashboard")

	_, err = p.CreateCheckout(context.Background(), billing.CheckoutRequest{Token: tok, CustomerID: "cus_9", Email: "x@y"})
	require.NoError(t, err)
	assert.Equal(t, "cus_9", *api.checkout.Customer)
	assert.Nil(t, api.checkout.CustomerEmail)

	annual, err := billing.NewIdentityToken("u1", billing.PlanStarter, billing.IntervalAnnual)
	require.NoError(t, err)
	_, err = p.CreateCheckout(context.Background(), billing.CheckoutRequest{Token: annual})
	assert.ErrorIs(t, err, billing.ErrMissingConfiguration)
}

func TestStripeProvider_CreatePortalLink(t *testing.T) {
	t.Parallel()

	api := &fakeStripeAPI{}
	p := newStripeProvider(api)

	link, err := p.CreatePortalLink(context.Background(), "cus_1")
	require.NoError(t, err)
	assert.NotEmpty(t, link.URL)
	assert.Equal(t, "cus_1", *api.portal.Customer)
	assert.Equal(t, "https://app.test/dashboard", *api.portal.ReturnURL)

	_, err = p.CreatePortalLink(context.Background(), "")
	assert.ErrorIs(t, err, billing.ErrNoProviderCustomer)
}
