package billing

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// quotaDeltas are the AI-call credits granted per activation or renewal.
var quotaDeltas = map[PlanTier]Quota{
	PlanStarter: Limited(5),
	PlanProFit:  Limited(20),
	PlanMaxFlex: Unlimited(),
}

// FreeQuota is the allowance every account starts with.
func FreeQuota() Quota { return Limited(1) }

// DefaultCurrency is used for provider-side plan creation.
const DefaultCurrency = "USD"

// defaultAmounts are list prices used when provisioning PayPal plans.
var defaultAmounts = map[PlanTier]map[Interval]string{
	PlanStarter: {IntervalMonthly: "9.99", IntervalAnnual: "99.99"},
	PlanProFit:  {IntervalMonthly: "19.99", IntervalAnnual: "199.99"},
	PlanMaxFlex: {IntervalMonthly: "39.99", IntervalAnnual: "399.99"},
}

type priceKey struct {
	provider Provider
	plan     PlanTier
	interval Interval
}

type planRef struct {
	plan     PlanTier
	interval Interval
}

// Catalog maps tiers to quota deltas, list prices and provider price ids.
// Price ids may be registered at runtime (PayPal plans are created lazily),
// so lookups are guarded by a RWMutex.
type Catalog struct {
	mu       sync.RWMutex
	prices   map[priceKey]string
	reverse  map[Provider]map[string]planRef
	amounts  map[PlanTier]map[Interval]decimal.Decimal
	currency string
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithPriceIdentifier registers a provider price id for a tier and interval.
// Empty ids are ignored so unset env vars fall through to MissingConfiguration.
func WithPriceIdentifier(provider Provider, plan PlanTier, interval Interval, id string) CatalogOption {
	return func(c *Catalog) { c.register(provider, plan, interval, id) }
}

// WithAmount overrides a list price.
func WithAmount(plan PlanTier, interval Interval, amount decimal.Decimal) CatalogOption {
	return func(c *Catalog) { c.amounts[plan][interval] = amount }
}

// WithCurrency sets the ISO currency of list prices.
func WithCurrency(currency string) CatalogOption {
	return func(c *Catalog) {
		if currency != "" {
			c.currency = strings.ToUpper(currency)
		}
	}
}

// NewCatalog creates a catalog with the default list prices and no provider ids.
func NewCatalog(opts ...CatalogOption) *Catalog {
	c := &Catalog{
		prices:   make(map[priceKey]string),
		reverse:  make(map[Provider]map[string]planRef),
		amounts:  make(map[PlanTier]map[Interval]decimal.Decimal),
		currency: DefaultCurrency,
	}
	for plan, byInterval := range defaultAmounts {
		c.amounts[plan] = make(map[Interval]decimal.Decimal, len(byInterval))
		for interval, amount := range byInterval {
			c.amounts[plan][interval] = decimal.RequireFromString(amount)
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// QuotaDeltaFor returns the credits granted for plan. Free carries no grant.
func (c *Catalog) QuotaDeltaFor(plan PlanTier) (Quota, error) {
	if plan == PlanFree {
		return Quota{}, ErrPlanNotBillable
	}
	q, ok := quotaDeltas[plan]
	if !ok {
		return Quota{}, fmt.Errorf("%w: %q", ErrUnknownPlan, plan)
	}
	return q, nil
}

// PriceIdentifierFor returns the provider price id for the tuple.
func (c *Catalog) PriceIdentifierFor(provider Provider, plan PlanTier, interval Interval) (string, error) {
	if err := validatePlanInterval(plan, interval); err != nil {
		return "", err
	}
	c.mu.RLock()
	id, ok := c.prices[priceKey{provider, plan, interval}]
	c.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: no %s price for %s/%s", ErrMissingConfiguration, provider, plan, interval)
	}
	return id, nil
}

// PlanForPriceIdentifier resolves a provider price id back to its tier.
func (c *Catalog) PlanForPriceIdentifier(provider Provider, priceID string) (PlanTier, Interval, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ref, ok := c.reverse[provider][priceID]
	return ref.plan, ref.interval, ok
}

// RegisterPriceIdentifier records a price id created at runtime.
func (c *Catalog) RegisterPriceIdentifier(provider Provider, plan PlanTier, interval Interval, id string) error {
	if err := validatePlanInterval(plan, interval); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: empty price id", ErrMissingConfiguration)
	}
	c.register(provider, plan, interval, id)
	return nil
}

// AmountFor returns the list price and currency.
func (c *Catalog) AmountFor(plan PlanTier, interval Interval) (decimal.Decimal, string, error) {
	if err := validatePlanInterval(plan, interval); err != nil {
		return decimal.Zero, "", err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.amounts[plan][interval], c.currency, nil
}

// Configured lists the tiers that have a price id for provider.
func (c *Catalog) Configured(provider Provider) []PlanTier {
	c.mu.RLock()
	defer c.mu.RUnlock()
	plans := lo.Uniq(lo.Map(lo.Values(c.reverse[provider]), func(r planRef, _ int) PlanTier { return r.plan }))
	return lo.Filter(PaidTiers(), func(p PlanTier, _ int) bool { return lo.Contains(plans, p) })
}

func (c *Catalog) register(provider Provider, plan PlanTier, interval Interval, id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	k := priceKey{provider, plan, interval}
	if old, ok := c.prices[k]; ok {
		delete(c.reverse[provider], old)
	}
	c.prices[k] = id
	if c.reverse[provider] == nil {
		c.reverse[provider] = make(map[string]planRef)
	}
	c.reverse[provider][id] = planRef{plan, interval}
}

func validatePlanInterval(plan PlanTier, interval Interval) error {
	if plan == PlanFree {
		return ErrPlanNotBillable
	}
	if !plan.IsPaid() {
		return fmt.Errorf("%w: %q", ErrUnknownPlan, plan)
	}
	if interval != IntervalMonthly && interval != IntervalAnnual {
		return fmt.Errorf("%w: %q", ErrUnknownInterval, interval)
	}
	return nil
}

// CatalogConfig carries provider price ids from the environment.
// The unsuffixed Stripe names are the monthly prices.
type CatalogConfig struct {
	Currency string `env:"BILLING_CURRENCY" envDefault:"USD"`

	StripeStarterMonthly string `env:"STARTER_PRICE_ID"`
	StripeStarterAnnual  string `env:"STARTER_ANNUAL_PRICE_ID"`
	StripeProFitMonthly  string `env:"PROFIT_PRICE_ID"`
	StripeProFitAnnual   string `env:"PROFIT_ANNUAL_PRICE_ID"`
	StripeMaxFlexMonthly string `env:"MAXFLEX_PRICE_ID"`
	StripeMaxFlexAnnual  string `env:"MAXFLEX_ANNUAL_PRICE_ID"`

	PayPalStarterMonthly string `env:"PAYPAL_STARTER_MONTHLY_PLAN_ID"`
	PayPalStarterAnnual  string `env:"PAYPAL_STARTER_ANNUAL_PLAN_ID"`
	PayPalProFitMonthly  string `env:"PAYPAL_PROFIT_MONTHLY_PLAN_ID"`
	PayPalProFitAnnual   string `env:"PAYPAL_PROFIT_ANNUAL_PLAN_ID"`
	PayPalMaxFlexMonthly string `env:"PAYPAL_MAXFLEX_MONTHLY_PLAN_ID"`
	PayPalMaxFlexAnnual  string `env:"PAYPAL_MAXFLEX_ANNUAL_PLAN_ID"`

	PlansFile string `env:"BILLING_PLANS_FILE"`
}

// Options converts the env settings to catalog options.
func (cfg CatalogConfig) Options() []CatalogOption {
	return []CatalogOption{
		WithCurrency(cfg.Currency),
		WithPriceIdentifier(ProviderStripe, PlanStarter, IntervalMonthly, cfg.StripeStarterMonthly),
		WithPriceIdentifier(ProviderStripe, PlanStarter, IntervalAnnual, cfg.StripeStarterAnnual),
		WithPriceIdentifier(ProviderStripe, PlanProFit, IntervalMonthly, cfg.StripeProFitMonthly),
		WithPriceIdentifier(ProviderStripe, PlanProFit, IntervalAnnual, cfg.StripeProFitAnnual),
		WithPriceIdentifier(ProviderStripe, PlanMaxFlex, IntervalMonthly, cfg.StripeMaxFlexMonthly),
		WithPriceIdentifier(ProviderStripe, PlanMaxFlex, IntervalAnnual, cfg.StripeMaxFlexAnnual),
		WithPriceIdentifier(ProviderPayPal, PlanStarter, IntervalMonthly, cfg.PayPalStarterMonthly),
		WithPriceIdentifier(ProviderPayPal, PlanStarter, IntervalAnnual, cfg.PayPalStarterAnnual),
		WithPriceIdentifier(ProviderPayPal, PlanProFit, IntervalMonthly, cfg.PayPalProFitMonthly),
		WithPriceIdentifier(ProviderPayPal, PlanProFit, IntervalAnnual, cfg.PayPalProFitAnnual),
		WithPriceIdentifier(ProviderPayPal, PlanMaxFlex, IntervalMonthly, cfg.PayPalMaxFlexMonthly),
		WithPriceIdentifier(ProviderPayPal, PlanMaxFlex, IntervalAnnual, cfg.PayPalMaxFlexAnnual),
	}
}

type plansFile struct {
	Currency string                                    `yaml:"currency"`
	Plans    map[string]map[string]plansFileIntervalDef `yaml:"plans"`
}

type plansFileIntervalDef struct {
	Amount        string `yaml:"amount"`
	StripePriceID string `yaml:"stripe_price_id"`
	PayPalPlanID  string `yaml:"paypal_plan_id"`
}

// LoadYAML applies a plans file on top of the current catalog:
//
//	currency: USD
//	plans:
//	  proFit:
//	    monthly: {amount: "19.99", stripe_price_id: price_123, paypal_plan_id: P-123}
func (c *Catalog) LoadYAML(r io.Reader) error {
	var f plansFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return errors.Join(ErrInvalidPlansFile, err)
	}

	type amountDef struct {
		plan     PlanTier
		interval Interval
		amount   decimal.Decimal
	}
	var (
		amounts []amountDef
		ids     []CatalogOption
	)
	for rawPlan, intervals := range f.Plans {
		plan, err := ParsePlanTier(rawPlan)
		if err != nil || !plan.IsPaid() {
			return fmt.Errorf("%w: plan %q", ErrInvalidPlansFile, rawPlan)
		}
		for rawInterval, def := range intervals {
			interval, err := ParseInterval(rawInterval)
			if err != nil {
				return fmt.Errorf("%w: interval %q", ErrInvalidPlansFile, rawInterval)
			}
			if def.Amount != "" {
				amount, err := decimal.NewFromString(def.Amount)
				if err != nil || !amount.IsPositive() {
					return fmt.Errorf("%w: amount %q for %s/%s", ErrInvalidPlansFile, def.Amount, plan, interval)
				}
				amounts = append(amounts, amountDef{plan, interval, amount})
			}
			ids = append(ids,
				WithPriceIdentifier(ProviderStripe, plan, interval, def.StripePriceID),
				WithPriceIdentifier(ProviderPayPal, plan, interval, def.PayPalPlanID),
			)
		}
	}

	c.mu.Lock()
	if f.Currency != "" {
		c.currency = strings.ToUpper(f.Currency)
	}
	for _, a := range amounts {
		c.amounts[a.plan][a.interval] = a.amount
	}
	c.mu.Unlock()

	for _, opt := range ids {
		opt(c)
	}
	return nil
}
