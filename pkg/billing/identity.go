package billing

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	identityTokenVersion = 1
	identityTokenPrefix  = "v1."

	// Metadata keys written on Stripe checkout sessions and subscriptions.
	metaUserID   = "userId"
	metaPlan     = "plan"
	metaInterval = "interval"
	metaIdentity = "identity"
)

// IdentityToken is embedded in a provider subscription at checkout so
// asynchronous events can be attributed to a user.
type IdentityToken struct {
	Version  int
	UserID   string
	Plan     PlanTier
	Interval Interval
}

type identityPayload struct {
	UserID   string `json:"u"`
	Plan     string `json:"p"`
	Interval string `json:"i,omitempty"`
}

// NewIdentityToken builds a current-version token for a paid checkout.
func NewIdentityToken(userID string, plan PlanTier, interval Interval) (IdentityToken, error) {
	t := IdentityToken{Version: identityTokenVersion, UserID: userID, Plan: plan, Interval: interval}
	if err := t.Validate(); err != nil {
		return IdentityToken{}, err
	}
	return t, nil
}

// Validate checks the user id is set and the plan is a paid tier.
func (t IdentityToken) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidIdentityToken)
	}
	if !t.Plan.IsPaid() {
		return fmt.Errorf("%w: plan %q", ErrInvalidPlan, t.Plan)
	}
	if t.Interval != IntervalMonthly && t.Interval != IntervalAnnual {
		return fmt.Errorf("%w: interval %q", ErrInvalidIdentityToken, t.Interval)
	}
	return nil
}

// Encode serializes the token as "v1." + base64url(JSON). The result fits
// PayPal's 127 character custom_id limit for ordinary user ids.
func (t IdentityToken) Encode() string {
	b, _ := json.Marshal(identityPayload{UserID: t.UserID, Plan: string(t.Plan), Interval: string(t.Interval)})
	return identityTokenPrefix + base64.RawURLEncoding.EncodeToString(b)
}

// ParseIdentityToken decodes a v1 token, or a legacy
// "{userId}_{plan}_{interval}" string. Legacy strings are split from the
// right so user ids may contain underscores.
func ParseIdentityToken(s string) (IdentityToken, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return IdentityToken{}, fmt.Errorf("%w: empty", ErrInvalidIdentityToken)
	}
	if strings.HasPrefix(s, identityTokenPrefix) {
		return parseV1Token(strings.TrimPrefix(s, identityTokenPrefix))
	}
	return parseLegacyToken(s)
}

func parseV1Token(enc string) (IdentityToken, error) {
	raw, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return IdentityToken{}, fmt.Errorf("%w: %v", ErrInvalidIdentityToken, err)
	}
	var p identityPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return IdentityToken{}, fmt.Errorf("%w: %v", ErrInvalidIdentityToken, err)
	}
	return buildToken(identityTokenVersion, p.UserID, p.Plan, p.Interval)
}

func parseLegacyToken(s string) (IdentityToken, error) {
	parts := strings.Split(s, "_")
	if len(parts) < 3 {
		return IdentityToken{}, fmt.Errorf("%w: expected {userId}_{plan}_{interval}", ErrInvalidIdentityToken)
	}
	n := len(parts)
	return buildToken(0, strings.Join(parts[:n-2], "_"), parts[n-2], parts[n-1])
}

func buildToken(version int, userID, rawPlan, rawInterval string) (IdentityToken, error) {
	plan, err := ParsePlanTier(rawPlan)
	if err != nil {
		return IdentityToken{}, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}
	interval, err := ParseInterval(rawInterval)
	if err != nil {
		return IdentityToken{}, fmt.Errorf("%w: %v", ErrInvalidIdentityToken, err)
	}
	t := IdentityToken{Version: version, UserID: userID, Plan: plan, Interval: interval}
	if err := t.Validate(); err != nil {
		return IdentityToken{}, err
	}
	return t, nil
}

// StripeMetadata returns the metadata attached to checkout sessions.
func (t IdentityToken) StripeMetadata() map[string]string {
	return map[string]string{
		metaUserID:   t.UserID,
		metaPlan:     string(t.Plan),
		metaInterval: string(t.Interval),
		metaIdentity: t.Encode(),
	}
}

// stripeIdentity reads who and what a Stripe checkout was for.
// The user comes from client_reference_id, falling back to metadata.
// The plan is optional here; the adapter falls back to the price id.
func stripeIdentity(clientReferenceID string, md map[string]string) (userID string, plan PlanTier, interval Interval, err error) {
	if enc := md[metaIdentity]; enc != "" {
		t, err := ParseIdentityToken(enc)
		if err != nil {
			return "", "", "", err
		}
		if clientReferenceID != "" && clientReferenceID != t.UserID {
			return "", "", "", fmt.Errorf("%w: client_reference_id does not match metadata", ErrInvalidIdentityToken)
		}
		return t.UserID, t.Plan, t.Interval, nil
	}

	userID = clientReferenceID
	if userID == "" {
		userID = md[metaUserID]
	}
	if userID == "" {
		return "", "", "", fmt.Errorf("%w: missing client_reference_id", ErrInvalidIdentityToken)
	}
	if raw := md[metaPlan]; raw != "" {
		if plan, err = ParsePlanTier(raw); err != nil {
			return "", "", "", fmt.Errorf("%w: %w", ErrInvalidPlan, err)
		}
	}
	interval, _ = ParseInterval(md[metaInterval])
	return userID, plan, interval, nil
}
