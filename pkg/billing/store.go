package billing

import "context"

// ProviderField names a provider identifier column usable for reverse lookup.
type ProviderField string

const (
	FieldStripeCustomerID     ProviderField = "stripe_customer_id"
	FieldStripeSubscriptionID ProviderField = "stripe_subscription_id"
	FieldPayPalSubscriptionID ProviderField = "paypal_subscription_id"
	FieldPayPalCustomerID     ProviderField = "paypal_customer_id"
)

// MutateFunc edits an entitlement draft. Returning an error discards the draft.
type MutateFunc func(e *Entitlement) error

// LedgerRecord marks a processed event.
type LedgerRecord struct {
	Key            string
	Provider       Provider
	Kind           EventKind
	EventID        string
	SubscriptionID string
}

// Store persists entitlements and the processed-event ledger.
//
// Apply must be atomic: it loads the user's entitlement under a row lock,
// fails with ErrDuplicateEvent when rec.Key was already recorded, runs fn,
// then writes the entitlement and the ledger record together. Nothing is
// written when fn fails. An empty rec.Key skips the ledger.
type Store interface {
	FindByID(ctx context.Context, userID string) (*Entitlement, error)
	FindByProviderID(ctx context.Context, field ProviderField, value string) (*Entitlement, error)
	Processed(ctx context.Context, key string) (bool, error)
	Apply(ctx context.Context, userID string, rec LedgerRecord, fn MutateFunc) (*Entitlement, error)
}
