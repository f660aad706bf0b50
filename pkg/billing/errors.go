package billing

import "errors"

var (
	ErrVerificationFailed    = errors.New("billing: webhook signature verification failed")
	ErrUnresolvedEvent       = errors.New("billing: event could not be resolved")
	ErrUserNotFound          = errors.New("billing: user not found")
	ErrIdentityMismatch      = errors.New("billing: subscription belongs to another user")
	ErrInvalidPlan           = errors.New("billing: invalid plan")
	ErrUnknownPlan           = errors.New("billing: unknown plan")
	ErrPlanNotBillable       = errors.New("billing: free plan has no provider price")
	ErrUnknownInterval       = errors.New("billing: unknown billing interval")
	ErrUnknownProvider       = errors.New("billing: unknown payment provider")
	ErrMissingConfiguration  = errors.New("billing: missing configuration")
	ErrProviderAPI           = errors.New("billing: provider API call failed")
	ErrEventIgnored          = errors.New("billing: event ignored")
	ErrDuplicateEvent        = errors.New("billing: event already processed")
	ErrInvalidIdentityToken  = errors.New("billing: invalid identity token")
	ErrMalformedPayload      = errors.New("billing: malformed webhook payload")
	ErrSubscriptionNotActive = errors.New("billing: subscription is not active")
	ErrNoProviderCustomer    = errors.New("billing: user has no provider customer")
	ErrInvalidPlansFile      = errors.New("billing: invalid plans file")
	ErrUserExists            = errors.New("billing: user already exists")
	ErrProviderIDConflict    = errors.New("billing: provider id already linked to another user")
)

// Outcome codes written to logs and metrics under the "code" key.
const (
	CodeApplied               = "applied"
	CodeIgnored               = "ignored"
	CodeDuplicate             = "duplicate_event"
	CodeVerificationFailure   = "verification_failure"
	CodeUnresolved            = "unresolved_event"
	CodeNotFound              = "not_found"
	CodeIdentityMismatch      = "identity_mismatch"
	CodeInvalidPlan           = "invalid_plan"
	CodeMissingConfiguration  = "missing_configuration"
	CodeProviderAPIError      = "provider_api_error"
	CodeSubscriptionNotActive = "subscription_not_active"
	CodeUnknownProvider       = "unknown_provider"
	CodeProviderIDConflict    = "provider_id_conflict"
	CodeInternal              = "internal_error"
)

// ErrorCode maps err to its stable outcome code. Nil maps to CodeApplied.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return CodeApplied
	case errors.Is(err, ErrMissingConfiguration):
		return CodeMissingConfiguration
	case errors.Is(err, ErrVerificationFailed):
		return CodeVerificationFailure
	case errors.Is(err, ErrIdentityMismatch):
		return CodeIdentityMismatch
	case errors.Is(err, ErrProviderIDConflict):
		return CodeProviderIDConflict
	case errors.Is(err, ErrInvalidPlan), errors.Is(err, ErrUnknownPlan),
		errors.Is(err, ErrPlanNotBillable), errors.Is(err, ErrUnknownInterval):
		return CodeInvalidPlan
	case errors.Is(err, ErrProviderAPI):
		return CodeProviderAPIError
	case errors.Is(err, ErrUnknownProvider):
		return CodeUnknownProvider
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrNoProviderCustomer):
		return CodeNotFound
	case errors.Is(err, ErrDuplicateEvent):
		return CodeDuplicate
	case errors.Is(err, ErrEventIgnored):
		return CodeIgnored
	case errors.Is(err, ErrSubscriptionNotActive):
		return CodeSubscriptionNotActive
	case errors.Is(err, ErrUnresolvedEvent), errors.Is(err, ErrMalformedPayload), errors.Is(err, ErrInvalidIdentityToken):
		return CodeUnresolved
	default:
		return CodeInternal
	}
}

// IsSoft reports whether a webhook delivery that failed with err is still
// acknowledged. Only deliveries that could not be verified are refused,
// including those arriving before the webhook secret is configured.
func IsSoft(err error) bool {
	return !errors.Is(err, ErrVerificationFailed)
}
