package requestid

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

const (
	Header      = "X-Request-ID"
	maxIDLength = 128
)

// deliveryHeaders carry provider delivery ids; webhooks rarely send
// X-Request-ID, so these correlate logs with the provider dashboard.
var deliveryHeaders = []string{
	"Paypal-Transmission-Id",
	"Stripe-Request-Id",
}

var validID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Middleware stores a request id in the context and echoes it in the
// response. It reuses a valid X-Request-ID or provider delivery id and
// generates a UUID otherwise.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := fromRequest(r)
		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), id)))
	})
}

func fromRequest(r *http.Request) string {
	if id := r.Header.Get(Header); isValid(id) {
		return id
	}
	for _, h := range deliveryHeaders {
		if id := r.Header.Get(h); isValid(id) {
			return id
		}
	}
	return uuid.NewString()
}

func isValid(id string) bool {
	return id != "" && len(id) <= maxIDLength && validID.MatchString(id)
}
