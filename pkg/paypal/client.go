package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Client calls the PayPal REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

type clientOptions struct {
	base   *http.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*clientOptions)

// WithHTTPClient sets the underlying HTTP client used for both token and
// API requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) {
		if c != nil {
			o.base = c
		}
	}
}

// WithLogger logs retry attempts.
func WithLogger(l *slog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = l
	}
}

// New creates a client authenticated with OAuth2 client credentials.
func New(cfg Config, opts ...Option) (*Client, error) {
	if !cfg.Configured() {
		return nil, ErrMissingCredentials
	}
	o := &clientOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.base == nil {
		o.base = &http.Client{Timeout: cfg.Timeout}
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = o.base
	rc.RetryMax = cfg.MaxRetries
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	if o.logger != nil {
		rc.Logger = o.logger
	}
	transport := rc.StandardClient()

	baseURL := cfg.APIBaseURL()
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     baseURL + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, transport)

	return &Client{
		baseURL: baseURL,
		http:    cc.Client(tokenCtx),
	}, nil
}

// Product is a catalog product.
type Product struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	Category    string `json:"category,omitempty"`
}

// CreateProduct registers a catalog product. Type defaults to SERVICE.
func (c *Client) CreateProduct(ctx context.Context, p Product) (*Product, error) {
	if p.Type == "" {
		p.Type = "SERVICE"
	}
	var out Product
	if err := c.do(ctx, http.MethodPost, "/v1/catalogs/products", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// IntervalUnit is a billing cycle unit.
type IntervalUnit string

const (
	IntervalMonth IntervalUnit = "MONTH"
	IntervalYear  IntervalUnit = "YEAR"
)

// PlanRequest describes a fixed-price recurring plan with infinite cycles.
type PlanRequest struct {
	ProductID   string
	Name        string
	Description string
	Interval    IntervalUnit
	Price       decimal.Decimal
	Currency    string
}

// Plan is a billing plan.
type Plan struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
}

type money struct {
	Value        string `json:"value"`
	CurrencyCode string `json:"currency_code"`
}

type billingCycle struct {
	Frequency struct {
		IntervalUnit  IntervalUnit `json:"interval_unit"`
		IntervalCount int          `json:"interval_count"`
	} `json:"frequency"`
	TenureType    string `json:"tenure_type"`
	Sequence      int    `json:"sequence"`
	TotalCycles   int    `json:"total_cycles"`
	PricingScheme struct {
		FixedPrice money `json:"fixed_price"`
	} `json:"pricing_scheme"`
}

type planBody struct {
	ProductID     string `json:"product_id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	Status        string `json:"status"`
	BillingCycles []billingCycle `json:"billing_cycles"`
	PaymentPreferences struct {
		AutoBillOutstanding     bool   `json:"auto_bill_outstanding"`
		SetupFeeFailureAction   string `json:"setup_fee_failure_action"`
		PaymentFailureThreshold int    `json:"payment_failure_threshold"`
	} `json:"payment_preferences"`
	Taxes struct {
		Percentage string `json:"percentage"`
		Inclusive  bool   `json:"inclusive"`
	} `json:"taxes"`
}

// CreatePlan creates an active plan under an existing product.
func (c *Client) CreatePlan(ctx context.Context, req PlanRequest) (*Plan, error) {
	if req.ProductID == "" {
		return nil, fmt.Errorf("paypal: plan requires a product id")
	}
	if !req.Price.IsPositive() {
		return nil, fmt.Errorf("paypal: plan price must be positive, got %s", req.Price)
	}

	body := planBody{
		ProductID:   req.ProductID,
		Name:        req.Name,
		Description: req.Description,
		Status:      "ACTIVE",
	}
	var cycle billingCycle
	cycle.Frequency.IntervalUnit = req.Interval
	cycle.Frequency.IntervalCount = 1
	cycle.TenureType = "REGULAR"
	cycle.Sequence = 1
	cycle.PricingScheme.FixedPrice = money{Value: req.Price.StringFixed(2), CurrencyCode: req.Currency}
	body.BillingCycles = []billingCycle{cycle}
	body.PaymentPreferences.AutoBillOutstanding = true
	body.PaymentPreferences.SetupFeeFailureAction = "CONTINUE"
	body.PaymentPreferences.PaymentFailureThreshold = 3
	body.Taxes.Percentage = "0"

	var out Plan
	if err := c.do(ctx, http.MethodPost, "/v1/billing/plans", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Link is a HATEOAS link on an API resource.
type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

// Subscription is a billing subscription.
type Subscription struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	PlanID     string     `json:"plan_id"`
	CustomID   string     `json:"custom_id"`
	CreateTime *time.Time `json:"create_time,omitempty"`
	Subscriber struct {
		PayerID      string `json:"payer_id"`
		EmailAddress string `json:"email_address"`
	} `json:"subscriber"`
	BillingInfo struct {
		NextBillingTime *time.Time `json:"next_billing_time,omitempty"`
	} `json:"billing_info"`
	Links []Link `json:"links"`
}

// ApproveURL returns the link the buyer follows to approve the subscription.
func (s *Subscription) ApproveURL() (string, error) {
	for _, l := range s.Links {
		if l.Rel == "approve" {
			return l.Href, nil
		}
	}
	return "", ErrNoApproveLink
}

// SubscriptionRequest describes a new subscription awaiting buyer approval.
type SubscriptionRequest struct {
	PlanID     string
	CustomID   string
	Email      string
	BrandName  string
	ReturnURL  string
	CancelURL  string
	StartAfter time.Duration
}

type subscriptionBody struct {
	PlanID     string     `json:"plan_id"`
	CustomID   string     `json:"custom_id,omitempty"`
	StartTime  *time.Time `json:"start_time,omitempty"`
	Subscriber *struct {
		EmailAddress string `json:"email_address"`
	} `json:"subscriber,omitempty"`
	ApplicationContext struct {
		BrandName          string `json:"brand_name,omitempty"`
		Locale             string `json:"locale"`
		ShippingPreference string `json:"shipping_preference"`
		UserAction         string `json:"user_action"`
		ReturnURL          string `json:"return_url"`
		CancelURL          string `json:"cancel_url"`
	} `json:"application_context"`
}

// CreateSubscription creates a subscription in APPROVAL_PENDING state.
func (c *Client) CreateSubscription(ctx context.Context, req SubscriptionRequest) (*Subscription, error) {
	body := subscriptionBody{PlanID: req.PlanID, CustomID: req.CustomID}
	if req.StartAfter > 0 {
		start := time.Now().Add(req.StartAfter).UTC().Truncate(time.Second)
		body.StartTime = &start
	}
	if req.Email != "" {
		body.Subscriber = &struct {
			EmailAddress string `json:"email_address"`
		}{EmailAddress: req.Email}
	}
	body.ApplicationContext.BrandName = req.BrandName
	body.ApplicationContext.Locale = "en-US"
	body.ApplicationContext.ShippingPreference = "NO_SHIPPING"
	body.ApplicationContext.UserAction = "SUBSCRIBE_NOW"
	body.ApplicationContext.ReturnURL = req.ReturnURL
	body.ApplicationContext.CancelURL = req.CancelURL

	var out Subscription
	if err := c.do(ctx, http.MethodPost, "/v1/billing/subscriptions", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSubscription fetches a subscription by id.
func (c *Client) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	if id == "" {
		return nil, fmt.Errorf("paypal: subscription id is required")
	}
	var out Subscription
	if err := c.do(ctx, http.MethodGet, "/v1/billing/subscriptions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("paypal: encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("paypal: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=representation")
		// Makes POST retries safe on the PayPal side.
		req.Header.Set("PayPal-Request-Id", uuid.NewString())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("paypal: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("paypal: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Join(fmt.Errorf("paypal: decode %s response", path), err)
	}
	return nil
}
