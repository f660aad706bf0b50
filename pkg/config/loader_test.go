package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxfitai/billing/pkg/config"
)

type stripeSettings struct {
	SecretKey    string        `env:"STRIPE_SECRET_KEY,required"`
	FetchTimeout time.Duration `env:"STRIPE_FETCH_TIMEOUT" envDefault:"5s"`
	PriceIDs     []string      `env:"STRIPE_PRICE_IDS" envSeparator:","`
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("parses values and defaults", func(t *testing.T) {
		t.Parallel()
		var cfg stripeSettings
		err := config.Load(&cfg, config.WithEnviron(map[string]string{
			"STRIPE_SECRET_KEY": "sk_test_1",
			"STRIPE_PRICE_IDS":  "price_a,price_b",
		}))
		require.NoError(t, err)
		assert.Equal(t, "sk_test_1", cfg.SecretKey)
		assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
		assert.Equal(t, []string{"price_a", "price_b"}, cfg.PriceIDs)
	})

	t.Run("prefix", func(t *testing.T) {
		t.Parallel()
		var cfg stripeSettings
		err := config.Load(&cfg,
			config.WithPrefix("BILLING_"),
			config.WithEnviron(map[string]string{
				"BILLING_STRIPE_SECRET_KEY":    "sk_prefixed",
				"BILLING_STRIPE_FETCH_TIMEOUT": "2s",
				"STRIPE_SECRET_KEY":            "ignored",
			}),
		)
		require.NoError(t, err)
		assert.Equal(t, "sk_prefixed", cfg.SecretKey)
		assert.Equal(t, 2*time.Second, cfg.FetchTimeout)
	})

	t.Run("missing required", func(t *testing.T) {
		t.Parallel()
		var cfg stripeSettings
		err := config.Load(&cfg, config.WithEnviron(map[string]string{}))
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("nil pointer", func(t *testing.T) {
		t.Parallel()
		var cfg *stripeSettings
		assert.ErrorIs(t, config.Load(cfg), config.ErrNilPointer)
	})
}

func TestLoadDotenvFile(t *testing.T) {
	type fileSettings struct {
		Brand string `env:"CONFIG_TEST_BRAND"`
	}

	path := filepath.Join(t.TempDir(), "billing.env")
	require.NoError(t, os.WriteFile(path, []byte("CONFIG_TEST_BRAND=MAXFIT AI\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("CONFIG_TEST_BRAND") })

	var cfg fileSettings
	require.NoError(t, config.Load(&cfg, config.WithEnvFiles(path)))
	assert.Equal(t, "MAXFIT AI", cfg.Brand)
}

func TestMustLoad(t *testing.T) {
	t.Parallel()

	var cfg stripeSettings
	assert.Panics(t, func() {
		config.MustLoad(&cfg, config.WithEnviron(map[string]string{}))
	})
	assert.NotPanics(t, func() {
		config.MustLoad(&cfg, config.WithEnviron(map[string]string{"STRIPE_SECRET_KEY": "sk"}))
	})
}
