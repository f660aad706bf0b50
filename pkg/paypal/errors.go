package paypal

import (
	"errors"
	"fmt"
)

var (
	ErrMissingCredentials   = errors.New("paypal: missing client credentials")
	ErrMissingWebhookID     = errors.New("paypal: missing webhook id")
	ErrMissingHeader        = errors.New("paypal: missing transmission header")
	ErrUnsupportedAlgorithm = errors.New("paypal: unsupported signature algorithm")
	ErrUntrustedCertURL     = errors.New("paypal: untrusted certificate url")
	ErrInvalidCertificate   = errors.New("paypal: invalid signing certificate")
	ErrInvalidSignature     = errors.New("paypal: invalid transmission signature")
	ErrNoApproveLink        = errors.New("paypal: subscription has no approve link")
)

// APIError is a non-2xx response from the PayPal REST API.
type APIError struct {
	StatusCode int    `json:"-"`
	Name       string `json:"name"`
	Message    string `json:"message"`
	DebugID    string `json:"debug_id"`
}

func (e *APIError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("paypal: api status %d", e.StatusCode)
	}
	return fmt.Sprintf("paypal: api status %d: %s: %s (debug_id=%s)", e.StatusCode, e.Name, e.Message, e.DebugID)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}
