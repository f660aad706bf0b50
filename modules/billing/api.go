package billing

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/maxfitai/billing/handler"
	"github.com/maxfitai/billing/pkg/binder"
	bill "github.com/maxfitai/billing/pkg/billing"
	"github.com/maxfitai/billing/pkg/jwt"
	"github.com/maxfitai/billing/pkg/ratelimiter"
	"github.com/maxfitai/billing/pkg/validator"
)

var (
	paypalSubscriptionID = regexp.MustCompile(`^I-[A-Z0-9]+$`)
	intervalInputs       = []string{"", "monthly", "month", "annual", "annually", "yearly", "year"}
	planInputs           = lo.Map(bill.PaidTiers(), func(p bill.PlanTier, _ int) string { return strings.ToLower(string(p)) })
)

// APIHandler serves the authenticated billing endpoints. It must be mounted
// behind jwt.Middleware.
type APIHandler struct {
	svc  bill.Service
	opts options
}

// NewAPIHandler panics if svc is nil.
func NewAPIHandler(svc bill.Service, opts ...Option) *APIHandler {
	if svc == nil {
		panic("billing: service is required")
	}
	return &APIHandler{svc: svc, opts: newOptions(opts)}
}

// Handle returns the router for checkout, portal, activation and
// entitlement reads.
func (h *APIHandler) Handle() http.Handler {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		if h.opts.limiter != nil {
			r.Use(ratelimiter.Middleware(h.opts.limiter, byCaller,
				ratelimiter.WithLogger(h.opts.logger),
				ratelimiter.WithLimitHandler(tooManyRequests),
			))
		}
		r.Post("/checkout/stripe", h.checkout(bill.ProviderStripe))
		r.Post("/checkout/paypal", h.checkout(bill.ProviderPayPal))
		r.Post("/portal", handler.Wrap(h.portal,
			handler.WithErrorHandler[handler.Context, struct{}](h.opts.errorHandler),
		))
	})

	r.Post("/activate-paypal-subscription", handler.Wrap(h.activate,
		handler.WithBinders[handler.Context, activationRequest](binder.JSON()),
		handler.WithErrorHandler[handler.Context, activationRequest](h.opts.errorHandler),
	))

	r.Get("/entitlement", handler.Wrap(h.entitlement,
		handler.WithErrorHandler[handler.Context, struct{}](h.opts.errorHandler),
	))

	return r
}

type checkoutRequest struct {
	Plan     string `json:"plan"`
	Interval string `json:"interval"`
	IsAnnual bool   `json:"isAnnual"`
}

func (r checkoutRequest) validate() error {
	return validator.Apply(
		validator.Required("plan", r.Plan),
		validator.OneOf("plan", strings.ToLower(strings.TrimSpace(r.Plan)), planInputs),
		validator.OneOf("interval", strings.ToLower(strings.TrimSpace(r.Interval)), intervalInputs),
	)
}

func (r checkoutRequest) params(provider bill.Provider, userID string) (bill.CheckoutParams, error) {
	plan, err := bill.ParsePlanTier(r.Plan)
	if err != nil {
		return bill.CheckoutParams{}, err
	}
	raw := r.Interval
	if raw == "" && r.IsAnnual {
		raw = string(bill.IntervalAnnual)
	}
	interval, err := bill.ParseInterval(raw)
	if err != nil {
		return bill.CheckoutParams{}, err
	}
	return bill.CheckoutParams{Provider: provider, UserID: userID, Plan: plan, Interval: interval}, nil
}

func (h *APIHandler) checkout(provider bill.Provider) http.HandlerFunc {
	return handler.Wrap(
		func(ctx handler.Context, req checkoutRequest) handler.Response {
			userID, err := callerID(ctx)
			if err != nil {
				return handler.Error(err)
			}
			if err := req.validate(); err != nil {
				return handler.Error(err)
			}
			params, err := req.params(provider, userID)
			if err != nil {
				return handler.Error(err)
			}
			link, err := h.svc.CreateCheckout(ctx, params)
			if err != nil {
				return handler.Error(err)
			}
			return handler.JSON(link)
		},
		handler.WithBinders[handler.Context, checkoutRequest](binder.JSON()),
		handler.WithErrorHandler[handler.Context, checkoutRequest](h.opts.errorHandler),
	)
}

func (h *APIHandler) portal(ctx handler.Context, _ struct{}) handler.Response {
	userID, err := callerID(ctx)
	if err != nil {
		return handler.Error(err)
	}
	link, err := h.svc.CreatePortalLink(ctx, userID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(link)
}

type activationRequest struct {
	SubscriptionID string `json:"subscriptionId"`
}

func (r activationRequest) validate() error {
	return validator.Apply(
		validator.Required("subscriptionId", r.SubscriptionID),
		validator.MaxLen("subscriptionId", r.SubscriptionID, 64),
		validator.Matches("subscriptionId", r.SubscriptionID, paypalSubscriptionID),
	)
}

func (h *APIHandler) activate(ctx handler.Context, req activationRequest) handler.Response {
	userID, err := callerID(ctx)
	if err != nil {
		return handler.Error(err)
	}
	if err := req.validate(); err != nil {
		return handler.Error(err)
	}
	ent, err := h.svc.ActivatePayPalSubscription(ctx, userID, req.SubscriptionID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(newEntitlementResponse(ent))
}

func (h *APIHandler) entitlement(ctx handler.Context, _ struct{}) handler.Response {
	userID, err := callerID(ctx)
	if err != nil {
		return handler.Error(err)
	}
	ent, err := h.svc.Entitlement(ctx, userID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(newEntitlementResponse(ent))
}

// EntitlementResponse is the client view of a user's billing state.
type EntitlementResponse struct {
	Plan                 bill.PlanTier `json:"plan"`
	MaxAICalls           bill.Quota    `json:"max_ai_calls"`
	AICallsUsed          int64         `json:"ai_calls_used"`
	Remaining            bill.Quota    `json:"remaining"`
	SubscriptionStatus   string        `json:"subscription_status,omitempty"`
	CancelAtPeriodEnd    bool          `json:"cancel_at_period_end"`
	CurrentPeriodEnd     *time.Time    `json:"current_period_end,omitempty"`
	StripeSubscriptionID string        `json:"stripe_subscription_id,omitempty"`
	PayPalSubscriptionID string        `json:"paypal_subscription_id,omitempty"`
}

func newEntitlementResponse(e *bill.Entitlement) EntitlementResponse {
	return EntitlementResponse{
		Plan:                 e.Plan,
		MaxAICalls:           e.MaxAICalls,
		AICallsUsed:          e.AICallsUsed,
		Remaining:            e.Remaining(),
		SubscriptionStatus:   e.SubscriptionStatus,
		CancelAtPeriodEnd:    e.CancelAtPeriodEnd,
		CurrentPeriodEnd:     e.CurrentPeriodEnd,
		StripeSubscriptionID: e.StripeSubscriptionID,
		PayPalSubscriptionID: e.PayPalSubscriptionID,
	}
}

func byCaller(r *http.Request) string {
	if id := jwt.UserID(r.Context()); id != "" {
		return id
	}
	return ""
}

func tooManyRequests(w http.ResponseWriter, r *http.Request, _ *ratelimiter.Result) {
	body := handler.JSONResponse{Error: &handler.ErrorDetail{
		Code:    "rate_limited",
		Message: "too many billing requests, try again later",
	}}
	_ = handler.RawJSON(http.StatusTooManyRequests, body).Render(w, r)
}

func callerID(ctx handler.Context) (string, error) {
	id := jwt.UserID(ctx)
	if id == "" {
		return "", handler.ErrUnauthorized
	}
	return id, nil
}
