package jwt

import (
	"net/http"
	"strings"
)

// TokenExtractor pulls a raw token from a request.
type TokenExtractor func(r *http.Request) (string, error)

// ErrorHandler writes the response for a rejected request.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middleware)

type middleware struct {
	extractors []TokenExtractor
	onError    ErrorHandler
}

// WithExtractors replaces the token sources, tried in order.
func WithExtractors(extractors ...TokenExtractor) MiddlewareOption {
	return func(m *middleware) {
		if len(extractors) > 0 {
			m.extractors = extractors
		}
	}
}

// WithErrorHandler sets the rejection response writer.
func WithErrorHandler(h ErrorHandler) MiddlewareOption {
	return func(m *middleware) {
		if h != nil {
			m.onError = h
		}
	}
}

// Middleware rejects requests without a valid access token and stores the
// verified claims in the request context.
func Middleware(svc *Service, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if svc == nil {
		panic("jwt: service is required")
	}
	m := &middleware{
		extractors: []TokenExtractor{BearerTokenExtractor},
		onError: func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		},
	}
	for _, opt := range opts {
		opt(m)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := m.token(r)
			claims, err := svc.Parse(token)
			if err != nil {
				m.onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func (m *middleware) token(r *http.Request) string {
	for _, extract := range m.extractors {
		if token, err := extract(r); err == nil && token != "" {
			return token
		}
	}
	return ""
}

// BearerTokenExtractor reads "Authorization: Bearer <token>".
func BearerTokenExtractor(r *http.Request) (string, error) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}

// CookieTokenExtractor reads the token from the named cookie.
func CookieTokenExtractor(name string) TokenExtractor {
	return func(r *http.Request) (string, error) {
		c, err := r.Cookie(name)
		if err != nil || c.Value == "" {
			return "", ErrMissingToken
		}
		return c.Value, nil
	}
}
