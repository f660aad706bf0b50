package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/maxfitai/billing/pkg/binder"
	"github.com/maxfitai/billing/pkg/logger"
	"github.com/maxfitai/billing/pkg/requestid"
	"github.com/maxfitai/billing/pkg/validator"
)

// Classifier maps a domain error to an HTTPError. It returns false for
// errors it does not recognise.
type Classifier func(err error) (HTTPError, bool)

// NewErrorHandler returns an ErrorHandler that logs err and writes a JSON
// error envelope. HTTPErrors, validation errors and binder errors are
// recognised first, then classifiers in order. Anything else is a 500 with
// a generic message.
func NewErrorHandler(log *slog.Logger, classifiers ...Classifier) ErrorHandler[Context] {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(logger.Component("http"))

	return func(ctx Context, err error) {
		r := ctx.Request()
		httpErr, detail := classify(err, classifiers)

		level := slog.LevelWarn
		if httpErr.Code >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		log.LogAttrs(r.Context(), level, "request failed",
			logger.Error(err),
			slog.Int("status_code", httpErr.Code),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)

		body := JSONResponse{Error: detail}
		if id := requestid.FromContext(r.Context()); id != "" {
			body.Meta = map[string]any{"request_id": id}
		}
		if renderErr := RawJSON(httpErr.Code, body).Render(ctx.ResponseWriter(), r); renderErr != nil {
			log.ErrorContext(r.Context(), "failed to write error response", logger.Error(renderErr))
		}
	}
}

func classify(err error, classifiers []Classifier) (HTTPError, *ErrorDetail) {
	if ve, ok := validator.Extract(err); ok {
		return ErrUnprocessableEntity, &ErrorDetail{
			Code:    ErrUnprocessableEntity.Key,
			Message: "request validation failed",
			Details: ve.Fields(),
		}
	}

	var httpErr HTTPError
	switch {
	case errors.As(err, &httpErr):
	case errors.Is(err, binder.ErrBodyTooLarge):
		httpErr = ErrRequestEntityTooLarge
	case errors.Is(err, binder.ErrUnsupportedMediaType), errors.Is(err, binder.ErrMissingContentType):
		httpErr = ErrUnsupportedMediaType
	case errors.Is(err, binder.ErrFailedToParseJSON), errors.Is(err, binder.ErrFailedToReadBody):
		httpErr = NewHTTPError(http.StatusBadRequest, ErrBadRequest.Key, "malformed request body")
	default:
		httpErr = ErrInternalServerError
		for _, c := range classifiers {
			if mapped, ok := c(err); ok {
				httpErr = mapped
				break
			}
		}
	}

	message := httpErr.Message
	if message == "" {
		message = http.StatusText(httpErr.Code)
	}
	return httpErr, &ErrorDetail{Code: httpErr.Key, Message: message}
}
