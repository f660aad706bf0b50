package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"golang.org/x/sync/singleflight"
)

const stripeSignatureHeader = "Stripe-Signature"

// StripeConfig holds Stripe credentials and redirect targets.
type StripeConfig struct {
	SecretKey     string        `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string        `env:"STRIPE_WEBHOOK_SECRET"`
	FetchTimeout  time.Duration `env:"STRIPE_FETCH_TIMEOUT" envDefault:"5s"`
}

// StripeAPI is the subset of the Stripe API used here.
type StripeAPI interface {
	RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
	CreatePortalSession(ctx context.Context, params *stripe.BillingPortalSessionCreateParams) (*stripe.BillingPortalSession, error)
}

type stripeClientAPI struct {
	client *stripe.Client
}

// NewStripeAPI wraps a stripe-go client.
func NewStripeAPI(client *stripe.Client) StripeAPI {
	if client == nil {
		panic("billing: stripe client is required")
	}
	return &stripeClientAPI{client: client}
}

func (a *stripeClientAPI) RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	return a.client.V1Subscriptions.Retrieve(ctx, id, &stripe.SubscriptionRetrieveParams{})
}

func (a *stripeClientAPI) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error) {
	return a.client.V1CheckoutSessions.Create(ctx, params)
}

func (a *stripeClientAPI) CreatePortalSession(ctx context.Context, params *stripe.BillingPortalSessionCreateParams) (*stripe.BillingPortalSession, error) {
	return a.client.V1BillingPortalSessions.Create(ctx, params)
}

// StripeProvider verifies and normalizes Stripe webhooks and creates
// checkout and billing portal sessions.
type StripeProvider struct {
	api           StripeAPI
	catalog       *Catalog
	webhookSecret string
	fetchTimeout  time.Duration
	appURL        string
	group         singleflight.Group
}

// NewStripeProvider creates the Stripe adapter. It panics on nil deps.
func NewStripeProvider(api StripeAPI, catalog *Catalog, cfg StripeConfig, appURL string) *StripeProvider {
	if api == nil {
		panic("billing: stripe API is required")
	}
	if catalog == nil {
		panic("billing: catalog is required")
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &StripeProvider{
		api:           api,
		catalog:       catalog,
		webhookSecret: cfg.WebhookSecret,
		fetchTimeout:  timeout,
		appURL:        appURL,
	}
}

func (p *StripeProvider) Provider() Provider { return ProviderStripe }

// VerifyAndNormalize checks the Stripe-Signature header before reading any
// business field, then maps the event to a normalized Event.
func (p *StripeProvider) VerifyAndNormalize(ctx context.Context, payload []byte, header http.Header) (*Event, error) {
	if p.webhookSecret == "" {
		return nil, fmt.Errorf("%w: %w: STRIPE_WEBHOOK_SECRET", ErrVerificationFailed, ErrMissingConfiguration)
	}
	sig := header.Get(stripeSignatureHeader)
	if sig == "" {
		return nil, fmt.Errorf("%w: missing %s header", ErrVerificationFailed, stripeSignatureHeader)
	}

	se, err := webhook.ConstructEventWithOptions(payload, sig, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errors.Join(ErrVerificationFailed, err)
	}

	ev := &Event{
		ID:         se.ID,
		Type:       string(se.Type),
		Provider:   ProviderStripe,
		OccurredAt: time.Unix(se.Created, 0).UTC(),
	}
	if se.Data == nil {
		return ev, fmt.Errorf("%w: empty data", ErrMalformedPayload)
	}
	raw := se.Data.Raw

	switch ev.Type {
	case "checkout.session.completed":
		return p.checkoutCompleted(ctx, ev, raw)
	case "invoice.payment_succeeded":
		return p.invoicePaid(ctx, ev, raw)
	case "invoice.payment_failed":
		return p.invoiceFailed(ev, raw)
	case "customer.subscription.updated":
		return p.subscriptionUpdated(ev, raw)
	case "customer.subscription.deleted":
		return p.subscriptionDeleted(ev, raw)
	default:
		return ev, fmt.Errorf("%w: %s", ErrEventIgnored, ev.Type)
	}
}

func (p *StripeProvider) checkoutCompleted(ctx context.Context, ev *Event, raw json.RawMessage) (*Event, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return ev, errors.Join(ErrMalformedPayload, err)
	}
	if session.Mode != stripe.CheckoutSessionModeSubscription {
		return ev, fmt.Errorf("%w: checkout mode %q", ErrEventIgnored, session.Mode)
	}

	ev.Kind = KindActivated
	ev.SubscriptionID = stripeSubscriptionID(session.Subscription)
	ev.CustomerID = stripeCustomerID(session.Customer)
	ev.PaymentRef = session.ID
	if ev.SubscriptionID == "" {
		return ev, fmt.Errorf("%w: session %s has no subscription", ErrUnresolvedEvent, session.ID)
	}

	userID, plan, interval, err := stripeIdentity(session.ClientReferenceID, session.Metadata)
	if err != nil {
		return ev, errors.Join(ErrUnresolvedEvent, err)
	}
	ev.UserID, ev.Plan, ev.Interval = userID, plan, interval

	if ev.Plan == "" {
		sub, err := p.fetchSubscription(ctx, ev.SubscriptionID)
		if err != nil {
			return ev, err
		}
		priceID, periodEnd := stripeSubscriptionItem(sub)
		plan, interval, ok := p.catalog.PlanForPriceIdentifier(ProviderStripe, priceID)
		if !ok {
			return ev, fmt.Errorf("%w: unknown stripe price %q", ErrUnresolvedEvent, priceID)
		}
		ev.Plan, ev.Interval, ev.PriceID = plan, interval, priceID
		ev.PeriodEnd = unixPtr(periodEnd)
	}
	return ev, nil
}

func (p *StripeProvider) invoicePaid(ctx context.Context, ev *Event, raw json.RawMessage) (*Event, error) {
	var inv stripe.Invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return ev, errors.Join(ErrMalformedPayload, err)
	}
	if inv.BillingReason != stripe.InvoiceBillingReasonSubscriptionCycle {
		return ev, fmt.Errorf("%w: billing_reason %q", ErrEventIgnored, inv.BillingReason)
	}

	ev.Kind = KindRecurringPayment
	ev.SubscriptionID = stripeInvoiceSubscriptionID(&inv)
	ev.CustomerID = stripeCustomerID(inv.Customer)
	ev.PaymentRef = inv.ID

	priceID, periodEnd := stripeInvoiceLine(&inv)
	if priceID == "" && ev.SubscriptionID != "" {
		sub, err := p.fetchSubscription(ctx, ev.SubscriptionID)
		if err != nil {
			return ev, err
		}
		priceID, periodEnd = stripeSubscriptionItem(sub)
	}
	ev.PriceID = priceID
	ev.PeriodEnd = unixPtr(periodEnd)
	if plan, interval, ok := p.catalog.PlanForPriceIdentifier(ProviderStripe, priceID); ok {
		ev.Plan, ev.Interval = plan, interval
	}
	return ev, nil
}

func (p *StripeProvider) invoiceFailed(ev *Event, raw json.RawMessage) (*Event, error) {
	var inv stripe.Invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return ev, errors.Join(ErrMalformedPayload, err)
	}
	ev.Kind = KindPaymentFailed
	ev.SubscriptionID = stripeInvoiceSubscriptionID(&inv)
	ev.CustomerID = stripeCustomerID(inv.Customer)
	ev.PaymentRef = inv.ID
	return ev, nil
}

func (p *StripeProvider) subscriptionUpdated(ev *Event, raw json.RawMessage) (*Event, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return ev, errors.Join(ErrMalformedPayload, err)
	}
	if sub.Status != stripe.SubscriptionStatusActive && sub.Status != stripe.SubscriptionStatusTrialing {
		return ev, fmt.Errorf("%w: subscription status %q", ErrEventIgnored, sub.Status)
	}

	ev.Kind = KindPlanChanged
	ev.SubscriptionID = sub.ID
	ev.CustomerID = stripeCustomerID(sub.Customer)
	ev.Status = string(sub.Status)
	ev.CancelAtPeriodEnd = sub.CancelAtPeriodEnd

	priceID, periodEnd := stripeSubscriptionItem(&sub)
	ev.PriceID, ev.PeriodEnd = priceID, unixPtr(periodEnd)
	if plan, interval, ok := p.catalog.PlanForPriceIdentifier(ProviderStripe, priceID); ok {
		ev.Plan, ev.Interval = plan, interval
	}
	return ev, nil
}

func (p *StripeProvider) subscriptionDeleted(ev *Event, raw json.RawMessage) (*Event, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return ev, errors.Join(ErrMalformedPayload, err)
	}
	ev.Kind = KindCancelled
	ev.SubscriptionID = sub.ID
	ev.CustomerID = stripeCustomerID(sub.Customer)
	ev.Status = string(sub.Status)
	return ev, nil
}

// fetchSubscription is the deferred plan lookup. It is bounded by
// fetchTimeout and concurrent deliveries for one subscription share a call.
func (p *StripeProvider) fetchSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	v, err, _ := p.group.Do(id, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.fetchTimeout)
		defer cancel()
		return p.api.RetrieveSubscription(ctx, id)
	})
	if err != nil {
		return nil, errors.Join(ErrUnresolvedEvent, ErrProviderAPI, err)
	}
	return v.(*stripe.Subscription), nil
}

// CreateCheckout starts a Stripe Checkout session for a subscription.
func (p *StripeProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error) {
	priceID, err := p.catalog.PriceIdentifierFor(ProviderStripe, req.Token.Plan, req.Token.Interval)
	if err != nil {
		return nil, err
	}
	md := req.Token.StripeMetadata()

	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
		},
		ClientReferenceID:        stripe.String(req.Token.UserID),
		Metadata:                 md,
		SubscriptionData:         &stripe.CheckoutSessionCreateSubscriptionDataParams{Metadata: md},
		AllowPromotionCodes:      stripe.Bool(true),
		BillingAddressCollection: stripe.String("auto"),
		SuccessURL:               stripe.String(p.appURL + "/dashboard?success=true&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:                stripe.String(p.appURL + "/pricing?canceled=true"),
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	} else if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}

	session, err := p.api.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, errors.Join(ErrProviderAPI, err)
	}
	if session.URL == "" {
		return nil, fmt.Errorf("%w: checkout session %s has no url", ErrProviderAPI, session.ID)
	}

	link := &CheckoutLink{Provider: ProviderStripe, URL: session.URL, SessionID: session.ID}
	if session.ExpiresAt > 0 {
		link.ExpiresAt = unixPtr(session.ExpiresAt)
	}
	return link, nil
}

// CreatePortalLink opens the Stripe billing portal for a customer.
func (p *StripeProvider) CreatePortalLink(ctx context.Context, customerID string) (*PortalLink, error) {
	if customerID == "" {
		return nil, ErrNoProviderCustomer
	}
	returnURL, err := url.JoinPath(p.appURL, "dashboard")
	if err != nil {
		return nil, fmt.Errorf("%w: APP_URL: %v", ErrMissingConfiguration, err)
	}
	session, err := p.api.CreatePortalSession(ctx, &stripe.BillingPortalSessionCreateParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	})
	if err != nil {
		return nil, errors.Join(ErrProviderAPI, err)
	}
	return &PortalLink{URL: session.URL}, nil
}

func stripeCustomerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func stripeSubscriptionID(s *stripe.Subscription) string {
	if s == nil {
		return ""
	}
	return s.ID
}

// stripeSubscriptionItem returns the first item's price and period end.
func stripeSubscriptionItem(sub *stripe.Subscription) (priceID string, periodEnd int64) {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return "", 0
	}
	item := sub.Items.Data[0]
	if item.Price != nil {
		priceID = item.Price.ID
	}
	return priceID, item.CurrentPeriodEnd
}

// stripeInvoiceSubscriptionID reads the invoice's parent subscription,
// falling back to the subscription item that produced a line.
func stripeInvoiceSubscriptionID(inv *stripe.Invoice) string {
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil {
		if id := stripeSubscriptionID(inv.Parent.SubscriptionDetails.Subscription); id != "" {
			return id
		}
	}
	if inv.Lines == nil {
		return ""
	}
	for _, line := range inv.Lines.Data {
		if line != nil && line.Parent != nil && line.Parent.SubscriptionItemDetails != nil &&
			line.Parent.SubscriptionItemDetails.Subscription != "" {
			return line.Parent.SubscriptionItemDetails.Subscription
		}
	}
	return ""
}

// stripeInvoiceLine returns the first line's price and period end.
func stripeInvoiceLine(inv *stripe.Invoice) (priceID string, periodEnd int64) {
	if inv.Lines == nil || len(inv.Lines.Data) == 0 || inv.Lines.Data[0] == nil {
		return "", 0
	}
	line := inv.Lines.Data[0]
	if line.Pricing != nil && line.Pricing.PriceDetails != nil {
		priceID = line.Pricing.PriceDetails.Price
	}
	if line.Period != nil {
		periodEnd = line.Period.End
	}
	return priceID, periodEnd
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
