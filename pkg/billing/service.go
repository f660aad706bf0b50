package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/maxfitai/billing/pkg/logger"
)

// Service is the billing entry point used by HTTP handlers.
type Service interface {
	// HandleWebhook verifies, resolves and applies one provider delivery.
	// A non-nil error means the delivery could not be verified and must not
	// be acknowledged; every other outcome is reported through the result's
	// Code.
	HandleWebhook(ctx context.Context, provider Provider, payload []byte, header http.Header) (WebhookResult, error)

	// ActivatePayPalSubscription applies a subscription the caller just
	// approved. It shares the webhook's idempotency key, so quota is
	// granted once whichever path arrives first.
	ActivatePayPalSubscription(ctx context.Context, callerID, subscriptionID string) (*Entitlement, error)

	CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutLink, error)
	CreatePortalLink(ctx context.Context, userID string) (*PortalLink, error)
	Entitlement(ctx context.Context, userID string) (*Entitlement, error)
}

// WebhookResult describes how a delivery was handled.
type WebhookResult struct {
	Provider    Provider
	EventID     string
	EventType   string
	Kind        EventKind
	UserID      string
	Code        string
	Entitlement *Entitlement
	Err         error
}

// CheckoutParams selects the provider and plan for a purchase.
type CheckoutParams struct {
	Provider Provider
	UserID   string
	Plan     PlanTier
	Interval Interval
}

type service struct {
	store          Store
	resolver       *Resolver
	reconciler     *Reconciler
	reconcilerOpts []ReconcilerOption

	adapters  map[Provider]Adapter
	checkouts map[Provider]CheckoutInitiator
	portal    PortalProvider
	activator SubscriptionActivator

	logger   *slog.Logger
	observer Observer
}

// NewService wires the resolver and reconciler over store and catalog.
// It panics on nil store or catalog.
func NewService(store Store, catalog *Catalog, opts ...ServiceOption) Service {
	if store == nil {
		panic("billing: Store is required")
	}
	if catalog == nil {
		panic("billing: Catalog is required")
	}

	s := &service{
		store:     store,
		adapters:  make(map[Provider]Adapter),
		checkouts: make(map[Provider]CheckoutInitiator),
		logger:    slog.Default(),
		observer:  nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.With(logger.Component("billing"))
	s.resolver = NewResolver(store)
	s.reconciler = NewReconciler(store, catalog, s.reconcilerOpts...)
	return s
}

func (s *service) HandleWebhook(ctx context.Context, provider Provider, payload []byte, header http.Header) (WebhookResult, error) {
	res := WebhookResult{Provider: provider}

	adapter, ok := s.adapters[provider]
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
		res.Code, res.Err = ErrorCode(err), err
		return res, err
	}

	ev, err := adapter.VerifyAndNormalize(ctx, payload, header)
	if ev != nil {
		res.EventID, res.EventType, res.Kind = ev.ID, ev.Type, ev.Kind
		res.UserID = ev.UserID
	}
	if err == nil {
		var resolution Resolution
		resolution, res.Entitlement, err = s.process(ctx, *ev, "")
		if resolution.UserID != "" {
			res.UserID = resolution.UserID
		}
	}

	res.Code, res.Err = ErrorCode(err), err
	s.observer.RecordWebhook(provider, res.Kind, res.Code)
	s.logWebhook(ctx, res, ev)

	if err != nil && !IsSoft(err) {
		return res, err
	}
	return res, nil
}

func (s *service) ActivatePayPalSubscription(ctx context.Context, callerID, subscriptionID string) (*Entitlement, error) {
	if callerID == "" {
		return nil, ErrIdentityMismatch
	}
	if subscriptionID == "" {
		return nil, fmt.Errorf("%w: subscription id is required", ErrUnresolvedEvent)
	}
	if s.activator == nil {
		return nil, fmt.Errorf("%w: paypal activation is not configured", ErrMissingConfiguration)
	}

	start := time.Now()
	ev, err := s.activator.ActivationEvent(ctx, subscriptionID)
	s.observer.RecordProviderCall(ProviderPayPal, "get_subscription", time.Since(start), err)
	if err != nil {
		s.logger.Log(ctx, levelFor(ErrorCode(err)), "paypal activation rejected",
			logger.UserID(callerID),
			logger.SubscriptionID(subscriptionID),
			logger.ErrorCode(ErrorCode(err)),
			logger.Error(err),
		)
		return nil, err
	}

	_, ent, err := s.process(ctx, *ev, callerID)
	code := ErrorCode(err)
	log := s.logger.With(
		logger.UserID(callerID),
		logger.Provider(string(ProviderPayPal)),
		logger.SubscriptionID(subscriptionID),
		logger.ErrorCode(code),
	)
	switch {
	case err == nil:
		log.InfoContext(ctx, "paypal subscription activated", logger.Plan(string(ent.Plan)))
		return ent, nil
	case errors.Is(err, ErrDuplicateEvent):
		log.InfoContext(ctx, "paypal subscription already active")
		return ent, nil
	default:
		log.Log(ctx, levelFor(code), "paypal activation failed", logger.Error(err))
		return nil, err
	}
}

// process resolves ev and applies it. A non-empty callerID requires the
// event to belong to that user.
func (s *service) process(ctx context.Context, ev Event, callerID string) (Resolution, *Entitlement, error) {
	var (
		resolution Resolution
		err        error
	)
	if callerID != "" {
		resolution, err = s.resolver.ResolveForCaller(ctx, ev, callerID)
	} else {
		resolution, err = s.resolver.Resolve(ctx, ev)
	}
	if err != nil {
		return resolution, nil, err
	}

	ent, err := s.reconciler.Apply(ctx, resolution, ev)
	if err == nil && ev.grantsQuota() {
		s.observer.RecordGrant(ev.Provider, resolution.Plan)
	}
	return resolution, ent, err
}

func (s *service) CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutLink, error) {
	initiator, ok := s.checkouts[params.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: checkout for %q is not configured", ErrMissingConfiguration, params.Provider)
	}
	token, err := NewIdentityToken(params.UserID, params.Plan, params.Interval)
	if err != nil {
		return nil, err
	}
	ent, err := s.store.FindByID(ctx, params.UserID)
	if err != nil {
		return nil, err
	}

	req := CheckoutRequest{Token: token, Email: ent.Email}
	if params.Provider == ProviderStripe {
		req.CustomerID = ent.StripeCustomerID
	}

	start := time.Now()
	link, err := initiator.CreateCheckout(ctx, req)
	s.observer.RecordProviderCall(params.Provider, "create_checkout", time.Since(start), err)

	log := s.logger.With(
		logger.UserID(params.UserID),
		logger.Provider(string(params.Provider)),
		logger.Plan(string(params.Plan)),
		slog.String("interval", string(params.Interval)),
	)
	if err != nil {
		log.ErrorContext(ctx, "checkout creation failed", logger.ErrorCode(ErrorCode(err)), logger.Error(err))
		return nil, err
	}
	log.InfoContext(ctx, "checkout created")
	return link, nil
}

func (s *service) CreatePortalLink(ctx context.Context, userID string) (*PortalLink, error) {
	if s.portal == nil {
		return nil, fmt.Errorf("%w: billing portal is not configured", ErrMissingConfiguration)
	}
	ent, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ent.StripeCustomerID == "" {
		return nil, ErrNoProviderCustomer
	}

	start := time.Now()
	link, err := s.portal.CreatePortalLink(ctx, ent.StripeCustomerID)
	s.observer.RecordProviderCall(ProviderStripe, "create_portal", time.Since(start), err)
	if err != nil {
		s.logger.ErrorContext(ctx, "portal session failed",
			logger.UserID(userID),
			logger.CustomerID(ent.StripeCustomerID),
			logger.Error(err),
		)
		return nil, err
	}
	return link, nil
}

func (s *service) Entitlement(ctx context.Context, userID string) (*Entitlement, error) {
	return s.store.FindByID(ctx, userID)
}

func (s *service) logWebhook(ctx context.Context, res WebhookResult, ev *Event) {
	attrs := []any{
		logger.Provider(string(res.Provider)),
		logger.EventID(res.EventID),
		logger.EventType(res.EventType),
		logger.EventKind(string(res.Kind)),
		logger.ErrorCode(res.Code),
	}
	if res.UserID != "" {
		attrs = append(attrs, logger.UserID(res.UserID))
	}
	if ev != nil {
		if ev.SubscriptionID != "" {
			attrs = append(attrs, logger.SubscriptionID(ev.SubscriptionID))
		}
		if ev.Plan != "" {
			attrs = append(attrs, logger.Plan(string(ev.Plan)))
		}
		if key := ev.IdempotencyKey(); key != "" {
			attrs = append(attrs, logger.IdempotencyKey(key))
		}
	}
	if res.Err != nil {
		attrs = append(attrs, logger.Error(res.Err))
	}

	msg := "webhook processed"
	if res.Kind == KindPaymentFailed && res.Code == CodeApplied {
		msg = "subscription payment failed"
	}
	s.logger.Log(ctx, levelFor(res.Code), msg, attrs...)
}

// levelFor picks the log level for an outcome code.
func levelFor(code string) slog.Level {
	switch code {
	case CodeIdentityMismatch, CodeInvalidPlan, CodeMissingConfiguration, CodeProviderIDConflict, CodeInternal:
		return slog.LevelError
	case CodeUnresolved, CodeProviderAPIError, CodeVerificationFailure:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
