package billing

import (
	"context"
	"net/http"
	"time"
)

// Adapter verifies a raw provider webhook and translates it into an Event.
//
// Verification happens before any business field is read. A verification
// failure is reported as ErrVerificationFailed. Events the engine does not
// act on return the partially filled Event together with ErrEventIgnored.
type Adapter interface {
	Provider() Provider
	VerifyAndNormalize(ctx context.Context, payload []byte, header http.Header) (*Event, error)
}

// CheckoutInitiator starts a provider-hosted purchase flow.
type CheckoutInitiator interface {
	Provider() Provider
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error)
}

// PortalProvider opens a self-service billing portal.
type PortalProvider interface {
	CreatePortalLink(ctx context.Context, customerID string) (*PortalLink, error)
}

// SubscriptionActivator turns a client-side approval into an Activated event.
type SubscriptionActivator interface {
	ActivationEvent(ctx context.Context, subscriptionID string) (*Event, error)
}

// CheckoutRequest describes who is buying which plan.
type CheckoutRequest struct {
	Token      IdentityToken
	Email      string
	CustomerID string
}

// CheckoutLink is where the caller sends the user to approve payment.
type CheckoutLink struct {
	Provider       Provider   `json:"provider"`
	URL            string     `json:"url"`
	SessionID      string     `json:"session_id,omitempty"`
	SubscriptionID string     `json:"subscription_id,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

// PortalLink is a billing portal URL.
type PortalLink struct {
	URL string `json:"url"`
}
