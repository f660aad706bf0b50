package environment

import (
	"context"
	"strings"
)

// Environment names the deployment the process runs in.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Parse normalizes a raw APP_ENV value. Short aliases are accepted and
// anything unrecognized falls back to Development.
func Parse(s string) Environment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "production", "prod", "live":
		return Production
	case "staging", "stage":
		return Staging
	default:
		return Development
	}
}

// IsProduction reports whether the environment bills real money.
func (e Environment) IsProduction() bool { return e == Production }

func (e Environment) String() string { return string(e) }

type contextKey struct{}

// WithContext stores env on ctx.
func WithContext(ctx context.Context, env Environment) context.Context {
	return context.WithValue(ctx, contextKey{}, env)
}

// FromContext returns the environment stored on ctx, or "" when unset.
func FromContext(ctx context.Context) Environment {
	if ctx == nil {
		return ""
	}
	env, _ := ctx.Value(contextKey{}).(Environment)
	return env
}
