package billing

import (
	"net/http"

	"github.com/maxfitai/billing/handler"
	bill "github.com/maxfitai/billing/pkg/billing"
)

// ClassifyError maps billing errors to HTTP errors. Internal errors are
// left to the error handler's generic 500.
func ClassifyError(err error) (handler.HTTPError, bool) {
	code := bill.ErrorCode(err)
	switch code {
	case bill.CodeVerificationFailure:
		return handler.NewHTTPError(http.StatusBadRequest, code, "webhook signature verification failed"), true
	case bill.CodeIdentityMismatch:
		return handler.NewHTTPError(http.StatusForbidden, code, "subscription does not belong to this account"), true
	case bill.CodeNotFound:
		return handler.NewHTTPError(http.StatusNotFound, code, "no billing account found"), true
	case bill.CodeUnknownProvider:
		return handler.NewHTTPError(http.StatusNotFound, code, "unknown payment provider"), true
	case bill.CodeSubscriptionNotActive:
		return handler.NewHTTPError(http.StatusConflict, code, "subscription is not active"), true
	case bill.CodeProviderIDConflict:
		return handler.NewHTTPError(http.StatusConflict, code, "subscription is linked to another account"), true
	case bill.CodeInvalidPlan:
		return handler.NewHTTPError(http.StatusUnprocessableEntity, code, "invalid plan or billing interval"), true
	case bill.CodeUnresolved:
		return handler.NewHTTPError(http.StatusUnprocessableEntity, code, "event could not be resolved"), true
	case bill.CodeProviderAPIError:
		return handler.NewHTTPError(http.StatusBadGateway, code, "payment provider is unavailable"), true
	case bill.CodeMissingConfiguration:
		return handler.NewHTTPError(http.StatusInternalServerError, code, "billing is not configured"), true
	default:
		return handler.HTTPError{}, false
	}
}
