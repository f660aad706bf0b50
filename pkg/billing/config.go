package billing

import (
	"fmt"
	"os"
	"time"
)

// Config is the billing section of the application environment.
type Config struct {
	AppURL          string        `env:"APP_URL" envDefault:"http://localhost:3000"`
	LockTTL         time.Duration `env:"BILLING_LOCK_TTL" envDefault:"30s"`
	MaxWebhookBytes int64         `env:"BILLING_MAX_WEBHOOK_BYTES" envDefault:"1048576"`

	Stripe   StripeConfig
	Redirect PayPalRedirects
	Catalog  CatalogConfig
}

// NewCatalogFromConfig builds the catalog from env ids and, when
// configured, the plans file.
func NewCatalogFromConfig(cfg CatalogConfig) (*Catalog, error) {
	c := NewCatalog(cfg.Options()...)
	if cfg.PlansFile == "" {
		return c, nil
	}
	f, err := os.Open(cfg.PlansFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPlansFile, err)
	}
	defer f.Close()
	if err := c.LoadYAML(f); err != nil {
		return nil, err
	}
	return c, nil
}
