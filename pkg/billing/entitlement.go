package billing

import "time"

// Entitlement is the billing subset of a user record.
// Empty provider ids mean "none".
type Entitlement struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email,omitempty"`
	Plan        PlanTier  `json:"plan"`
	MaxAICalls  Quota     `json:"max_ai_calls"`
	AICallsUsed int64     `json:"ai_calls_used"`
	UpdatedAt   time.Time `json:"updated_at"`

	StripeCustomerID     string `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string `json:"stripe_subscription_id,omitempty"`
	StripePriceID        string `json:"stripe_price_id,omitempty"`
	PayPalSubscriptionID string `json:"paypal_subscription_id,omitempty"`
	PayPalCustomerID     string `json:"paypal_customer_id,omitempty"`

	SubscriptionStatus string     `json:"subscription_status,omitempty"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
}

// NewEntitlement returns the signup state: free plan with the free quota.
func NewEntitlement(userID, email string) *Entitlement {
	return &Entitlement{
		UserID:     userID,
		Email:      email,
		Plan:       PlanFree,
		MaxAICalls: FreeQuota(),
		UpdatedAt:  time.Now().UTC(),
	}
}

// Remaining returns the calls left.
func (e *Entitlement) Remaining() Quota {
	return e.MaxAICalls.Remaining(e.AICallsUsed)
}

// SubscriptionID returns the stored subscription id for provider.
func (e *Entitlement) SubscriptionID(p Provider) string {
	switch p {
	case ProviderStripe:
		return e.StripeSubscriptionID
	case ProviderPayPal:
		return e.PayPalSubscriptionID
	}
	return ""
}

// ActiveProvider returns the provider holding the current subscription, if any.
func (e *Entitlement) ActiveProvider() (Provider, bool) {
	switch {
	case e.StripeSubscriptionID != "":
		return ProviderStripe, true
	case e.PayPalSubscriptionID != "":
		return ProviderPayPal, true
	}
	return "", false
}

func (e *Entitlement) setSubscriptionID(p Provider, id string) {
	switch p {
	case ProviderStripe:
		e.StripeSubscriptionID = id
	case ProviderPayPal:
		e.PayPalSubscriptionID = id
	}
}

func (e *Entitlement) setCustomerID(p Provider, id string) {
	if id == "" {
		return
	}
	switch p {
	case ProviderStripe:
		e.StripeCustomerID = id
	case ProviderPayPal:
		e.PayPalCustomerID = id
	}
}

// Clone returns a deep copy.
func (e *Entitlement) Clone() *Entitlement {
	c := *e
	if e.CurrentPeriodEnd != nil {
		t := *e.CurrentPeriodEnd
		c.CurrentPeriodEnd = &t
	}
	return &c
}
