package clientip

import "net/http"

// Middleware stores the resolved client IP in the request context.
func Middleware(headers ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ip := FromRequest(r, headers...); ip != "" {
				r = r.WithContext(WithContext(r.Context(), ip))
			}
			next.ServeHTTP(w, r)
		})
	}
}
