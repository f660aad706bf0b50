package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Option adjusts a single Load call.
type Option func(*options)

type options struct {
	prefix   string
	envFiles []string
	environ  map[string]string
}

// WithPrefix only reads variables starting with prefix, e.g. "BILLING_".
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithEnvFiles loads the given dotenv files instead of ./.env.
func WithEnvFiles(paths ...string) Option {
	return func(o *options) { o.envFiles = append(o.envFiles, paths...) }
}

// WithEnviron parses from environ instead of the process environment.
// Dotenv files are skipped in that case.
func WithEnviron(environ map[string]string) Option {
	return func(o *options) { o.environ = environ }
}

var (
	dotenvMu     sync.Mutex
	dotenvLoaded = map[string]bool{}
)

// loadDotenv loads each file at most once per process. Missing files are
// ignored and variables already set in the environment win.
func loadDotenv(paths []string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	dotenvMu.Lock()
	defer dotenvMu.Unlock()
	for _, p := range paths {
		if dotenvLoaded[p] {
			continue
		}
		dotenvLoaded[p] = true
		_ = godotenv.Load(p)
	}
}

// Load parses environment variables into v using `env` struct tags.
//
//	var cfg struct {
//		StripeSecretKey string `env:"STRIPE_SECRET_KEY,required"`
//		FetchTimeout    time.Duration `env:"STRIPE_FETCH_TIMEOUT" envDefault:"5s"`
//	}
//	if err := config.Load(&cfg); err != nil { ... }
func Load[T any](v *T, opts ...Option) error {
	if v == nil {
		return ErrNilPointer
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	eo := env.Options{Prefix: o.prefix}
	if o.environ != nil {
		eo.Environment = o.environ
	} else {
		loadDotenv(o.envFiles)
	}

	if err := env.ParseWithOptions(v, eo); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics on failure. Use it in main for
// settings the process cannot start without.
func MustLoad[T any](v *T, opts ...Option) {
	if err := Load(v, opts...); err != nil {
		panic(fmt.Sprintf("config: %v", strings.TrimSpace(err.Error())))
	}
}
