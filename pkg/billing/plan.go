package billing

import (
	"strings"

	"github.com/samber/lo"
)

// PlanTier is one of the four canonical subscription tiers.
type PlanTier string

const (
	PlanFree    PlanTier = "free"
	PlanStarter PlanTier = "starter"
	PlanProFit  PlanTier = "proFit"
	PlanMaxFlex PlanTier = "maxFlex"
)

var allTiers = []PlanTier{PlanFree, PlanStarter, PlanProFit, PlanMaxFlex}

// ParsePlanTier accepts the canonical names case-insensitively.
func ParsePlanTier(s string) (PlanTier, error) {
	s = strings.TrimSpace(s)
	for _, p := range allTiers {
		if strings.EqualFold(string(p), s) {
			return p, nil
		}
	}
	return "", ErrUnknownPlan
}

// IsPaid reports whether the tier is billed through a provider.
func (p PlanTier) IsPaid() bool {
	return p == PlanStarter || p == PlanProFit || p == PlanMaxFlex
}

func (p PlanTier) String() string { return string(p) }

// Title is the display form used in provider product names, e.g. "ProFit".
func (p PlanTier) Title() string {
	if p == "" {
		return ""
	}
	return strings.ToUpper(string(p[:1])) + string(p[1:])
}

// PaidTiers lists the tiers that carry provider prices.
func PaidTiers() []PlanTier {
	return lo.Filter(allTiers, func(p PlanTier, _ int) bool { return p.IsPaid() })
}

// Interval is the billing period of a paid subscription.
type Interval string

const (
	IntervalMonthly Interval = "monthly"
	IntervalAnnual  Interval = "annual"
)

// ParseInterval maps user input to an Interval. Empty input means monthly.
func ParseInterval(s string) (Interval, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "monthly", "month":
		return IntervalMonthly, nil
	case "annual", "annually", "yearly", "year":
		return IntervalAnnual, nil
	default:
		return "", ErrUnknownInterval
	}
}

func (i Interval) String() string { return string(i) }

// Provider identifies a payment provider.
type Provider string

const (
	ProviderStripe Provider = "stripe"
	ProviderPayPal Provider = "paypal"
)

func (p Provider) String() string { return string(p) }

// ParseProvider accepts "stripe" or "paypal".
func ParseProvider(s string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(s))) {
	case ProviderStripe:
		return ProviderStripe, nil
	case ProviderPayPal:
		return ProviderPayPal, nil
	default:
		return "", ErrUnknownProvider
	}
}
