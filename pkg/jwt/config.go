package jwt

import "time"

type Config struct {
	SigningKey string        `env:"JWT_SECRET,required"`                  // SigningKey is the HS256 secret shared with the auth service.
	Issuer     string        `env:"JWT_ISSUER"`                           // Issuer, when set, must match the iss claim.
	Leeway     time.Duration `env:"JWT_LEEWAY" envDefault:"30s"`          // Leeway tolerates clock skew on exp and nbf.
	Cookie     string        `env:"JWT_COOKIE" envDefault:"access_token"` // Cookie is checked when no Authorization header is sent.
}
