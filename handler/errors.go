package handler

import (
	"errors"
	"net/http"
)

// HTTPError is an error with a status code and a stable machine key.
type HTTPError struct {
	Code    int
	Key     string
	Message string
}

func (e HTTPError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Key
}

// NewHTTPError creates an HTTPError.
func NewHTTPError(code int, key, message string) HTTPError {
	return HTTPError{Code: code, Key: key, Message: message}
}

var (
	ErrBadRequest            = HTTPError{Code: http.StatusBadRequest, Key: "bad_request"}
	ErrUnauthorized          = HTTPError{Code: http.StatusUnauthorized, Key: "unauthorized"}
	ErrForbidden             = HTTPError{Code: http.StatusForbidden, Key: "forbidden"}
	ErrNotFound              = HTTPError{Code: http.StatusNotFound, Key: "not_found"}
	ErrConflict              = HTTPError{Code: http.StatusConflict, Key: "conflict"}
	ErrRequestEntityTooLarge = HTTPError{Code: http.StatusRequestEntityTooLarge, Key: "request_entity_too_large"}
	ErrUnsupportedMediaType  = HTTPError{Code: http.StatusUnsupportedMediaType, Key: "unsupported_media_type"}
	ErrUnprocessableEntity   = HTTPError{Code: http.StatusUnprocessableEntity, Key: "validation_error"}
	ErrInternalServerError   = HTTPError{Code: http.StatusInternalServerError, Key: "internal_error"}
	ErrBadGateway            = HTTPError{Code: http.StatusBadGateway, Key: "bad_gateway"}
	ErrServiceUnavailable    = HTTPError{Code: http.StatusServiceUnavailable, Key: "service_unavailable"}
)

// ErrNilResponse is reported when a handler returns nil.
var ErrNilResponse = errors.New("handler returned nil response")
