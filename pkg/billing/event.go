package billing

import (
	"strconv"
	"time"
)

// EventKind is the provider-agnostic classification of a webhook.
type EventKind string

const (
	KindActivated        EventKind = "activated"
	KindRecurringPayment EventKind = "recurring_payment_succeeded"
	KindCancelled        EventKind = "cancelled"
	KindPaymentFailed    EventKind = "payment_failed"
	// KindSuspended downgrades like a cancellation, but the subscription
	// may be reactivated later.
	KindSuspended EventKind = "suspended"
	// KindPlanChanged syncs plan and ids without granting quota.
	KindPlanChanged EventKind = "plan_changed"
)

func (k EventKind) String() string { return string(k) }

// Event is a verified webhook delivery normalized by an Adapter.
// It is built per delivery and never persisted.
type Event struct {
	ID       string // provider event id
	Type     string // raw provider event type
	Provider Provider
	Kind     EventKind

	// Set from the identity token on activation events.
	UserID   string
	Plan     PlanTier
	Interval Interval

	SubscriptionID string
	CustomerID     string
	PriceID        string
	// PaymentRef identifies a single charge (invoice or sale id).
	PaymentRef string
	Status     string

	OccurredAt        time.Time
	PeriodEnd         *time.Time
	CancelAtPeriodEnd bool
}

// IdempotencyKey is the ledger key guarding against redelivery. Activation
// and cancellation happen once per subscription, so their keys ignore the
// timestamp; this lets the PayPal redirect callback and the later webhook
// share one key. Renewals are keyed by the charge, suspensions by the
// delivery.
func (e Event) IdempotencyKey() string {
	base := string(e.Provider) + ":" + e.SubscriptionID + ":"
	switch e.Kind {
	case KindActivated:
		return base + "activated"
	case KindCancelled:
		return base + "cancelled"
	case KindRecurringPayment:
		ref := e.PaymentRef
		if ref == "" {
			ref = strconv.FormatInt(e.OccurredAt.Unix(), 10)
		}
		return base + "renewal:" + ref
	case KindPlanChanged:
		return base + "plan_sync:" + e.deliveryRef()
	case KindSuspended:
		return base + "suspended:" + e.deliveryRef()
	default:
		return ""
	}
}

// reactivationKey keys an activation of a subscription that was suspended
// after its first activation.
func (e Event) reactivationKey() string {
	return string(e.Provider) + ":" + e.SubscriptionID + ":reactivated:" + e.deliveryRef()
}

func (e Event) deliveryRef() string {
	if e.ID != "" {
		return e.ID
	}
	return strconv.FormatInt(e.OccurredAt.UnixNano(), 10)
}

// cancelledKey is the ledger key written when the subscription is cancelled.
func (e Event) cancelledKey() string {
	return string(e.Provider) + ":" + e.SubscriptionID + ":cancelled"
}

// grantsQuota reports whether the event kind adds credits.
func (e Event) grantsQuota() bool {
	return e.Kind == KindActivated || e.Kind == KindRecurringPayment
}
