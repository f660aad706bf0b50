package jwt

import (
	"errors"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// Claims are the access token claims issued by the auth service. Subject is
// the user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	gojwt.RegisteredClaims
}

// Service signs and verifies HS256 access tokens.
type Service struct {
	key    []byte
	issuer string
	parser *gojwt.Parser
}

// New creates a Service from cfg.
func New(cfg Config) (*Service, error) {
	if cfg.SigningKey == "" {
		return nil, ErrMissingSigningKey
	}
	opts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithExpirationRequired(),
		gojwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, gojwt.WithIssuer(cfg.Issuer))
	}
	return &Service{
		key:    []byte(cfg.SigningKey),
		issuer: cfg.Issuer,
		parser: gojwt.NewParser(opts...),
	}, nil
}

// Issue signs a token for userID valid for ttl.
func (s *Service) Issue(userID, email string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", ErrInvalidClaims
	}
	now := time.Now()
	claims := Claims{
		Email: email,
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Parse verifies token and returns its claims. Tokens without a subject are
// rejected.
func (s *Service) Parse(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(token, claims, func(*gojwt.Token) (any, error) {
		return s.key, nil
	})
	switch {
	case errors.Is(err, gojwt.ErrTokenExpired):
		return nil, errors.Join(ErrExpiredToken, err)
	case err != nil:
		return nil, errors.Join(ErrInvalidToken, err)
	case claims.Subject == "":
		return nil, ErrInvalidClaims
	}
	return claims, nil
}
