package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/maxfitai/billing/pkg/paypal"
)

const paypalBrandName = "MAXFIT AI"

// PayPalAPI is the subset of the PayPal REST API used here.
type PayPalAPI interface {
	CreateProduct(ctx context.Context, p paypal.Product) (*paypal.Product, error)
	CreatePlan(ctx context.Context, req paypal.PlanRequest) (*paypal.Plan, error)
	CreateSubscription(ctx context.Context, req paypal.SubscriptionRequest) (*paypal.Subscription, error)
	GetSubscription(ctx context.Context, id string) (*paypal.Subscription, error)
}

// WebhookVerifier checks a PayPal transmission signature.
type WebhookVerifier interface {
	Verify(ctx context.Context, header http.Header, body []byte) error
}

// PayPalRedirects are the approval return targets. Empty values fall back
// to APP_URL based defaults.
type PayPalRedirects struct {
	ReturnURL string `env:"PAYPAL_SUCCESS_URL"`
	CancelURL string `env:"PAYPAL_CANCEL_URL"`
}

// PayPalProvider verifies and normalizes PayPal webhooks, creates
// subscriptions and confirms client-side approvals.
type PayPalProvider struct {
	api       PayPalAPI
	verifier  WebhookVerifier
	catalog   *Catalog
	redirects PayPalRedirects
	group     singleflight.Group
}

// NewPayPalProvider creates the PayPal adapter. api may be nil when only
// webhooks are handled. It panics on a nil verifier or catalog.
func NewPayPalProvider(api PayPalAPI, verifier WebhookVerifier, catalog *Catalog, redirects PayPalRedirects, appURL string) *PayPalProvider {
	if verifier == nil {
		panic("billing: paypal webhook verifier is required")
	}
	if catalog == nil {
		panic("billing: catalog is required")
	}
	base := strings.TrimRight(appURL, "/")
	if redirects.ReturnURL == "" {
		redirects.ReturnURL = base + "/dashboard"
	}
	if redirects.CancelURL == "" {
		redirects.CancelURL = base + "/pricing?canceled=1"
	}
	return &PayPalProvider{api: api, verifier: verifier, catalog: catalog, redirects: redirects}
}

func (p *PayPalProvider) Provider() Provider { return ProviderPayPal }

type paypalWebhook struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	CreateTime time.Time       `json:"create_time"`
	Resource   json.RawMessage `json:"resource"`
}

type paypalResource struct {
	ID                 string `json:"id"`
	Status             string `json:"status"`
	PlanID             string `json:"plan_id"`
	CustomID           string `json:"custom_id"`
	BillingAgreementID string `json:"billing_agreement_id"`
	Subscriber         struct {
		PayerID string `json:"payer_id"`
	} `json:"subscriber"`
	BillingInfo struct {
		NextBillingTime *time.Time `json:"next_billing_time"`
	} `json:"billing_info"`
}

// VerifyAndNormalize checks the transmission signature, then maps the
// event to a normalized Event.
func (p *PayPalProvider) VerifyAndNormalize(ctx context.Context, payload []byte, header http.Header) (*Event, error) {
	if err := p.verifier.Verify(ctx, header, payload); err != nil {
		if errors.Is(err, paypal.ErrMissingWebhookID) {
			return nil, errors.Join(ErrVerificationFailed, ErrMissingConfiguration, err)
		}
		return nil, errors.Join(ErrVerificationFailed, err)
	}

	var wh paypalWebhook
	if err := json.Unmarshal(payload, &wh); err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}
	var res paypalResource
	if len(wh.Resource) > 0 {
		if err := json.Unmarshal(wh.Resource, &res); err != nil {
			return nil, errors.Join(ErrMalformedPayload, err)
		}
	}

	ev := &Event{
		ID:         wh.ID,
		Type:       wh.EventType,
		Provider:   ProviderPayPal,
		OccurredAt: wh.CreateTime.UTC(),
		Status:     res.Status,
	}

	switch wh.EventType {
	case "BILLING.SUBSCRIPTION.ACTIVATED":
		return p.activated(ev, res.ID, res.CustomID, res.PlanID, res.Subscriber.PayerID, res.BillingInfo.NextBillingTime)
	case "PAYMENT.SALE.COMPLETED":
		ev.Kind = KindRecurringPayment
		ev.SubscriptionID = res.BillingAgreementID
		ev.PaymentRef = res.ID
		if ev.SubscriptionID == "" {
			return ev, fmt.Errorf("%w: sale %s has no billing agreement", ErrEventIgnored, res.ID)
		}
		return ev, nil
	case "BILLING.SUBSCRIPTION.CANCELLED":
		ev.Kind = KindCancelled
		ev.SubscriptionID = res.ID
		return ev, nil
	case "BILLING.SUBSCRIPTION.SUSPENDED":
		ev.Kind = KindSuspended
		ev.SubscriptionID = res.ID
		return ev, nil
	case "BILLING.SUBSCRIPTION.PAYMENT.FAILED":
		ev.Kind = KindPaymentFailed
		ev.SubscriptionID = res.ID
		return ev, nil
	default:
		return ev, fmt.Errorf("%w: %s", ErrEventIgnored, wh.EventType)
	}
}

// activated fills an Activated event from the custom_id identity token.
func (p *PayPalProvider) activated(ev *Event, subID, customID, planID, payerID string, next *time.Time) (*Event, error) {
	ev.Kind = KindActivated
	ev.SubscriptionID = subID
	ev.CustomerID = payerID
	ev.PriceID = planID
	ev.PeriodEnd = next

	if customID == "" {
		return ev, fmt.Errorf("%w: subscription %s has no custom_id", ErrUnresolvedEvent, subID)
	}
	token, err := ParseIdentityToken(customID)
	if err != nil {
		return ev, errors.Join(ErrUnresolvedEvent, err)
	}
	ev.UserID, ev.Plan, ev.Interval = token.UserID, token.Plan, token.Interval
	return ev, nil
}

// ActivationEvent fetches a subscription the buyer just approved and turns
// it into an Activated event. Only ACTIVE subscriptions qualify.
func (p *PayPalProvider) ActivationEvent(ctx context.Context, subscriptionID string) (*Event, error) {
	if p.api == nil {
		return nil, fmt.Errorf("%w: PAYPAL_CLIENT_ID", ErrMissingConfiguration)
	}
	sub, err := p.api.GetSubscription(ctx, subscriptionID)
	if err != nil {
		if paypal.IsNotFound(err) {
			return nil, errors.Join(ErrSubscriptionNotActive, err)
		}
		return nil, errors.Join(ErrProviderAPI, err)
	}
	if sub.Status != "ACTIVE" {
		return nil, fmt.Errorf("%w: status %s", ErrSubscriptionNotActive, sub.Status)
	}

	ev := &Event{
		ID:         "activate:" + sub.ID,
		Type:       "client.activation",
		Provider:   ProviderPayPal,
		OccurredAt: time.Now().UTC(),
		Status:     sub.Status,
	}
	return p.activated(ev, sub.ID, sub.CustomID, sub.PlanID, sub.Subscriber.PayerID, sub.BillingInfo.NextBillingTime)
}

// CreateCheckout creates a PayPal subscription awaiting approval. Plans
// missing from the catalog are provisioned on first use.
func (p *PayPalProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error) {
	if p.api == nil {
		return nil, fmt.Errorf("%w: PAYPAL_CLIENT_ID", ErrMissingConfiguration)
	}
	planID, err := p.planID(ctx, req.Token.Plan, req.Token.Interval)
	if err != nil {
		return nil, err
	}

	sub, err := p.api.CreateSubscription(ctx, paypal.SubscriptionRequest{
		PlanID:     planID,
		CustomID:   req.Token.Encode(),
		Email:      req.Email,
		BrandName:  paypalBrandName,
		ReturnURL:  p.redirects.ReturnURL,
		CancelURL:  p.redirects.CancelURL,
		StartAfter: time.Minute,
	})
	if err != nil {
		return nil, errors.Join(ErrProviderAPI, err)
	}
	approve, err := sub.ApproveURL()
	if err != nil {
		return nil, errors.Join(ErrProviderAPI, err)
	}
	return &CheckoutLink{Provider: ProviderPayPal, URL: approve, SubscriptionID: sub.ID}, nil
}

func (p *PayPalProvider) planID(ctx context.Context, plan PlanTier, interval Interval) (string, error) {
	id, err := p.catalog.PriceIdentifierFor(ProviderPayPal, plan, interval)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrMissingConfiguration) {
		return "", err
	}

	v, err, _ := p.group.Do(string(plan)+":"+string(interval), func() (any, error) {
		if id, err := p.catalog.PriceIdentifierFor(ProviderPayPal, plan, interval); err == nil {
			return id, nil
		}
		return p.provisionPlan(ctx, plan, interval)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (p *PayPalProvider) provisionPlan(ctx context.Context, plan PlanTier, interval Interval) (string, error) {
	amount, currency, err := p.catalog.AmountFor(plan, interval)
	if err != nil {
		return "", err
	}

	product, err := p.api.CreateProduct(ctx, paypal.Product{
		Name:        paypalBrandName + " " + strings.ToUpper(string(plan)),
		Description: fmt.Sprintf("%s %s subscription service", paypalBrandName, plan),
		Type:        "SERVICE",
		Category:    "SOFTWARE",
	})
	if err != nil {
		return "", errors.Join(ErrProviderAPI, err)
	}

	unit := paypal.IntervalMonth
	label := "Monthly"
	if interval == IntervalAnnual {
		unit, label = paypal.IntervalYear, "Annual"
	}
	name := fmt.Sprintf("%s %s Plan", paypalBrandName, plan.Title())
	created, err := p.api.CreatePlan(ctx, paypal.PlanRequest{
		ProductID:   product.ID,
		Name:        name,
		Description: fmt.Sprintf("%s - %s Subscription", name, label),
		Interval:    unit,
		Price:       amount,
		Currency:    currency,
	})
	if err != nil {
		return "", errors.Join(ErrProviderAPI, err)
	}

	if err := p.catalog.RegisterPriceIdentifier(ProviderPayPal, plan, interval, created.ID); err != nil {
		return "", err
	}
	return created.ID, nil
}
