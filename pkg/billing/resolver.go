package billing

import (
	"context"
	"errors"
	"fmt"
)

// Resolution is who an event belongs to and which plan it applies.
type Resolution struct {
	UserID string
	Plan   PlanTier
	// Entitlement is the snapshot read during resolution.
	Entitlement *Entitlement
}

// Resolver maps normalized events to users.
type Resolver struct {
	store Store
}

// NewResolver creates a Resolver. It panics on a nil store.
func NewResolver(store Store) *Resolver {
	if store == nil {
		panic("billing: resolver requires a store")
	}
	return &Resolver{store: store}
}

// Resolve identifies the user and plan for ev.
//
// Activation events are attributed by their identity token only. Every
// other kind is attributed by reverse lookup of the provider subscription
// id (Stripe also falls back to the customer id).
func (r *Resolver) Resolve(ctx context.Context, ev Event) (Resolution, error) {
	switch ev.Kind {
	case KindActivated:
		return r.resolveActivation(ctx, ev)
	case KindPlanChanged:
		if !ev.Plan.IsPaid() {
			return Resolution{}, fmt.Errorf("%w: no paid plan for price %q", ErrUnresolvedEvent, ev.PriceID)
		}
		ent, err := r.lookup(ctx, ev)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{UserID: ent.UserID, Plan: ev.Plan, Entitlement: ent}, nil
	case KindRecurringPayment:
		ent, err := r.lookup(ctx, ev)
		if err != nil {
			return Resolution{}, err
		}
		plan := ev.Plan
		if plan == "" {
			plan = ent.Plan
		}
		if !plan.IsPaid() {
			return Resolution{}, fmt.Errorf("%w: user %s has no paid plan to renew", ErrUnresolvedEvent, ent.UserID)
		}
		return Resolution{UserID: ent.UserID, Plan: plan, Entitlement: ent}, nil
	case KindCancelled, KindSuspended, KindPaymentFailed:
		ent, err := r.lookup(ctx, ev)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{UserID: ent.UserID, Plan: ent.Plan, Entitlement: ent}, nil
	default:
		return Resolution{}, fmt.Errorf("%w: kind %q", ErrEventIgnored, ev.Kind)
	}
}

// ResolveForCaller is Resolve for the synchronous activation endpoint: the
// token's user must be the authenticated caller.
func (r *Resolver) ResolveForCaller(ctx context.Context, ev Event, callerID string) (Resolution, error) {
	if callerID == "" || ev.UserID != callerID {
		return Resolution{}, fmt.Errorf("%w: subscription %s", ErrIdentityMismatch, ev.SubscriptionID)
	}
	return r.Resolve(ctx, ev)
}

func (r *Resolver) resolveActivation(ctx context.Context, ev Event) (Resolution, error) {
	if ev.UserID == "" {
		return Resolution{}, errors.Join(ErrUnresolvedEvent, ErrInvalidIdentityToken)
	}
	if ev.Plan == "" {
		return Resolution{}, fmt.Errorf("%w: no plan for user %s", ErrUnresolvedEvent, ev.UserID)
	}
	if !ev.Plan.IsPaid() {
		return Resolution{}, fmt.Errorf("%w: %q", ErrInvalidPlan, ev.Plan)
	}
	ent, err := r.store.FindByID(ctx, ev.UserID)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{UserID: ent.UserID, Plan: ev.Plan, Entitlement: ent}, nil
}

type lookupKey struct {
	field ProviderField
	value string
}

func (r *Resolver) lookup(ctx context.Context, ev Event) (*Entitlement, error) {
	var keys []lookupKey
	switch ev.Provider {
	case ProviderStripe:
		keys = []lookupKey{
			{FieldStripeSubscriptionID, ev.SubscriptionID},
			{FieldStripeCustomerID, ev.CustomerID},
		}
	case ProviderPayPal:
		keys = []lookupKey{{FieldPayPalSubscriptionID, ev.SubscriptionID}}
	default:
		return nil, ErrUnknownProvider
	}

	for _, k := range keys {
		if k.value == "" {
			continue
		}
		ent, err := r.store.FindByProviderID(ctx, k.field, k.value)
		if errors.Is(err, ErrUserNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return ent, nil
	}
	return nil, fmt.Errorf("%w: %s subscription %q customer %q", ErrUserNotFound, ev.Provider, ev.SubscriptionID, ev.CustomerID)
}
