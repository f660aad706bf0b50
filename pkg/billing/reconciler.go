package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maxfitai/billing/pkg/locker"
	"github.com/maxfitai/billing/pkg/statemachine"
)

// lifecycle is the entitlement state derived from the stored plan.
type lifecycle string

const (
	stateFree       lifecycle = "free"
	stateActivePaid lifecycle = "active_paid"
)

func lifecycleOf(e *Entitlement) lifecycle {
	if e.Plan.IsPaid() {
		return stateActivePaid
	}
	return stateFree
}

const (
	statusActive    = "active"
	statusCanceled  = "canceled"
	statusSuspended = "suspended"
)

// transition is the data threaded through the state machine.
type transition struct {
	ent   *Entitlement
	ev    Event
	plan  PlanTier
	delta Quota
}

type (
	entitlementMachine = statemachine.Machine[lifecycle, EventKind, *transition]
	rowOption          = statemachine.TransitionOption[lifecycle, EventKind, *transition]
)

// Reconciler is the only writer of entitlements.
type Reconciler struct {
	store   Store
	catalog *Catalog
	locker  locker.Locker
	machine *entitlementMachine
	now     func() time.Time
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithLocker sets the per-user lock. Defaults to an in-process locker.
func WithLocker(l locker.Locker) ReconcilerOption {
	return func(r *Reconciler) {
		if l != nil {
			r.locker = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReconciler creates a Reconciler. It panics on nil store or catalog.
func NewReconciler(store Store, catalog *Catalog, opts ...ReconcilerOption) *Reconciler {
	if store == nil {
		panic("billing: reconciler requires a store")
	}
	if catalog == nil {
		panic("billing: reconciler requires a catalog")
	}
	r := &Reconciler{
		store:   store,
		catalog: catalog,
		locker:  locker.NewMemory(),
		machine: newEntitlementMachine(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func newEntitlementMachine() *entitlementMachine {
	var (
		activate  rowOption = statemachine.WithAction(actionActivate)
		renew     rowOption = statemachine.WithAction(actionRenew)
		syncPlan  rowOption = statemachine.WithAction(actionSyncPlan)
		downgrade rowOption = statemachine.WithAction(actionDowngrade)
		current   rowOption = statemachine.WithGuard(guardCurrentSubscription)
	)
	both := []lifecycle{stateFree, stateActivePaid}

	return statemachine.New(
		statemachine.WithFromAny(both, stateActivePaid, KindActivated, activate),
		statemachine.WithTransition(stateActivePaid, stateActivePaid, KindRecurringPayment, current, renew),
		statemachine.WithTransition(stateActivePaid, stateActivePaid, KindPlanChanged, current, syncPlan),
		statemachine.WithTransition(stateActivePaid, stateFree, KindCancelled, current, downgrade),
		statemachine.WithTransition(stateActivePaid, stateFree, KindSuspended, current, downgrade),
		statemachine.WithTransition[lifecycle, EventKind, *transition](stateFree, stateFree, KindPaymentFailed),
		statemachine.WithTransition[lifecycle, EventKind, *transition](stateActivePaid, stateActivePaid, KindPaymentFailed),
	)
}

// guardCurrentSubscription only lets events through for the subscription
// the user currently holds with that provider.
func guardCurrentSubscription(_ context.Context, _ lifecycle, _ EventKind, t *transition) bool {
	return t.ev.SubscriptionID != "" && t.ent.SubscriptionID(t.ev.Provider) == t.ev.SubscriptionID
}

func actionActivate(_ context.Context, _, _ lifecycle, _ EventKind, t *transition) error {
	e, ev := t.ent, t.ev
	e.Plan = t.plan
	e.MaxAICalls = e.MaxAICalls.Add(t.delta)
	e.setSubscriptionID(ev.Provider, ev.SubscriptionID)
	e.setCustomerID(ev.Provider, ev.CustomerID)
	// Only one provider subscription is current at a time.
	switch ev.Provider {
	case ProviderStripe:
		e.PayPalSubscriptionID = ""
		if ev.PriceID != "" {
			e.StripePriceID = ev.PriceID
		}
	case ProviderPayPal:
		e.StripeSubscriptionID = ""
		e.StripePriceID = ""
	}
	e.SubscriptionStatus = statusActive
	e.CancelAtPeriodEnd = false
	if ev.PeriodEnd != nil {
		e.CurrentPeriodEnd = ev.PeriodEnd
	}
	return nil
}

func actionRenew(_ context.Context, _, _ lifecycle, _ EventKind, t *transition) error {
	e := t.ent
	e.MaxAICalls = e.MaxAICalls.Add(t.delta)
	e.SubscriptionStatus = statusActive
	if t.ev.PeriodEnd != nil {
		e.CurrentPeriodEnd = t.ev.PeriodEnd
	}
	return nil
}

func actionSyncPlan(_ context.Context, _, _ lifecycle, _ EventKind, t *transition) error {
	e, ev := t.ent, t.ev
	e.Plan = t.plan
	if ev.PriceID != "" && ev.Provider == ProviderStripe {
		e.StripePriceID = ev.PriceID
	}
	if ev.Status != "" {
		e.SubscriptionStatus = ev.Status
	}
	e.CancelAtPeriodEnd = ev.CancelAtPeriodEnd
	if ev.PeriodEnd != nil {
		e.CurrentPeriodEnd = ev.PeriodEnd
	}
	return nil
}

// actionDowngrade moves the user to free. Earned quota is kept.
func actionDowngrade(_ context.Context, _, _ lifecycle, kind EventKind, t *transition) error {
	e := t.ent
	e.Plan = PlanFree
	e.setSubscriptionID(t.ev.Provider, "")
	if t.ev.Provider == ProviderStripe {
		e.StripePriceID = ""
	}
	e.SubscriptionStatus = statusCanceled
	if kind == KindSuspended {
		e.SubscriptionStatus = statusSuspended
	}
	e.CancelAtPeriodEnd = false
	return nil
}

// activationKey returns the ledger key for an activation. A subscription
// activates once, except when the user lost it to a suspension: the
// reactivation is then keyed by its delivery so it applies once.
func (r *Reconciler) activationKey(ctx context.Context, userID string, ev Event) (string, error) {
	key := ev.IdempotencyKey()
	done, err := r.store.Processed(ctx, key)
	if err != nil || !done {
		return key, err
	}
	current, err := r.store.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if current.SubscriptionStatus != statusSuspended || current.SubscriptionID(ev.Provider) != "" {
		return key, nil
	}
	return ev.reactivationKey(), nil
}

// Apply runs ev against the resolved user's entitlement.
//
// It holds the user's lock for the whole read-check-write, rejects events
// for subscriptions already cancelled, and writes the entitlement together
// with the event's ledger key. ErrDuplicateEvent means the event was
// already applied; the returned entitlement is then the current one.
func (r *Reconciler) Apply(ctx context.Context, res Resolution, ev Event) (*Entitlement, error) {
	if res.UserID == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrUnresolvedEvent)
	}
	if ev.SubscriptionID == "" && ev.Kind != KindPaymentFailed {
		return nil, fmt.Errorf("%w: %s event without subscription id", ErrUnresolvedEvent, ev.Kind)
	}

	var delta Quota
	if ev.grantsQuota() || ev.Kind == KindPlanChanged {
		d, err := r.catalog.QuotaDeltaFor(res.Plan)
		if err != nil {
			return nil, errors.Join(ErrInvalidPlan, err)
		}
		delta = d
	}

	if ev.Kind == KindPaymentFailed {
		// No mutation; the caller logs it.
		return res.Entitlement, nil
	}

	lease, err := r.locker.Acquire(ctx, "billing:user:"+res.UserID)
	if err != nil {
		return nil, fmt.Errorf("billing: lock user %s: %w", res.UserID, err)
	}
	defer func() { _ = lease.Release(context.WithoutCancel(ctx)) }()

	if ev.Kind != KindCancelled {
		cancelled, err := r.store.Processed(ctx, ev.cancelledKey())
		if err != nil {
			return nil, err
		}
		if cancelled {
			return nil, fmt.Errorf("%w: subscription %s already cancelled", ErrEventIgnored, ev.SubscriptionID)
		}
	}

	key := ev.IdempotencyKey()
	if ev.Kind == KindActivated {
		if key, err = r.activationKey(ctx, res.UserID, ev); err != nil {
			return nil, err
		}
	}

	rec := LedgerRecord{
		Key:            key,
		Provider:       ev.Provider,
		Kind:           ev.Kind,
		EventID:        ev.ID,
		SubscriptionID: ev.SubscriptionID,
	}

	updated, err := r.store.Apply(ctx, res.UserID, rec, func(e *Entitlement) error {
		if _, err := r.machine.Fire(ctx, lifecycleOf(e), ev.Kind, &transition{ent: e, ev: ev, plan: res.Plan, delta: delta}); err != nil {
			return err
		}
		e.UpdatedAt = r.now()
		return nil
	})
	switch {
	case err == nil:
		return updated, nil
	case errors.Is(err, statemachine.ErrNoTransition), errors.Is(err, statemachine.ErrRejected):
		if ev.Kind == KindRecurringPayment {
			return nil, errors.Join(ErrUnresolvedEvent, err)
		}
		return nil, errors.Join(ErrEventIgnored, err)
	default:
		return updated, err
	}
}
