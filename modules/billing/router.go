package billing

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maxfitai/billing/pkg/jwt"
)

// Router mounts webhooks under /webhooks and the authenticated API under
// /billing.
func Router(webhooks *WebhookHandler, api *APIHandler, auth *jwt.Service, authOpts ...jwt.MiddlewareOption) http.Handler {
	if webhooks == nil || api == nil || auth == nil {
		panic("billing: router requires webhook handler, api handler and auth service")
	}
	r := chi.NewRouter()
	r.Mount("/webhooks", webhooks.Handle())
	r.With(jwt.Middleware(auth, authOpts...)).Mount("/billing", api.Handle())
	return r
}
