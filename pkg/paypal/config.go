package paypal

import (
	"strings"
	"time"
)

const (
	LiveBaseURL    = "https://api-m.paypal.com"
	SandboxBaseURL = "https://api-m.sandbox.paypal.com"
)

// Config holds PayPal credentials. Environment "production" or "live"
// selects the live API; anything else uses the sandbox.
type Config struct {
	ClientID     string        `env:"PAYPAL_CLIENT_ID"`
	ClientSecret string        `env:"PAYPAL_CLIENT_SECRET"`
	Environment  string        `env:"PAYPAL_ENVIRONMENT" envDefault:"sandbox"`
	WebhookID    string        `env:"PAYPAL_WEBHOOK_ID"`
	BaseURL      string        `env:"PAYPAL_BASE_URL"`
	Timeout      time.Duration `env:"PAYPAL_TIMEOUT" envDefault:"15s"`
	MaxRetries   int           `env:"PAYPAL_MAX_RETRIES" envDefault:"3"`
}

// IsLive reports whether the live environment is configured.
func (c Config) IsLive() bool {
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "production", "prod", "live":
		return true
	default:
		return false
	}
}

// APIBaseURL returns BaseURL when set, otherwise the environment default.
func (c Config) APIBaseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	if c.IsLive() {
		return LiveBaseURL
	}
	return SandboxBaseURL
}

// Configured reports whether API credentials are present.
func (c Config) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}
