package billing

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maxfitai/billing/handler"
	"github.com/maxfitai/billing/pkg/binder"
	bill "github.com/maxfitai/billing/pkg/billing"
)

// WebhookHandler receives provider webhook deliveries. Deliveries the
// engine processed, ignored or could not resolve are acknowledged with
// 200 so providers stop retrying them.
type WebhookHandler struct {
	svc  bill.Service
	opts options
}

// NewWebhookHandler panics if svc is nil.
func NewWebhookHandler(svc bill.Service, opts ...Option) *WebhookHandler {
	if svc == nil {
		panic("billing: service is required")
	}
	return &WebhookHandler{svc: svc, opts: newOptions(opts)}
}

// Handle returns the router serving POST /stripe and POST /paypal.
func (h *WebhookHandler) Handle() http.Handler {
	r := chi.NewRouter()
	r.Post("/stripe", h.receive(bill.ProviderStripe))
	r.Post("/paypal", h.receive(bill.ProviderPayPal))
	return r
}

type webhookAck struct {
	Received bool `json:"received"`
}

func (h *WebhookHandler) receive(provider bill.Provider) http.HandlerFunc {
	return handler.Wrap(
		func(ctx handler.Context, body binder.RawBody) handler.Response {
			if _, err := h.svc.HandleWebhook(ctx, provider, body.Payload, body.Header); err != nil {
				return handler.Error(err)
			}
			return handler.RawJSON(http.StatusOK, webhookAck{Received: true})
		},
		handler.WithBinders[handler.Context, binder.RawBody](binder.Raw(h.opts.maxWebhookBytes)),
		handler.WithErrorHandler[handler.Context, binder.RawBody](h.opts.errorHandler),
	)
}
