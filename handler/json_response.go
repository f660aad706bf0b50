package handler

import (
	"encoding/json"
	"net/http"
)

// JSONResponse is the API envelope.
type JSONResponse struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code    string              `json:"code"`
	Message string              `json:"message,omitempty"`
	Details map[string][]string `json:"details,omitempty"`
}

type jsonResponse struct {
	status int
	body   any
}

func (j jsonResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

// JSONOption configures JSON.
type JSONOption func(status *int, body *JSONResponse)

// WithJSONStatus sets the status code.
func WithJSONStatus(status int) JSONOption {
	return func(s *int, _ *JSONResponse) { *s = status }
}

// WithJSONMeta sets the meta object.
func WithJSONMeta(meta map[string]any) JSONOption {
	return func(_ *int, b *JSONResponse) { b.Meta = meta }
}

// JSON wraps v in the {"data": ...} envelope with status 200.
func JSON(v any, opts ...JSONOption) Response {
	status := http.StatusOK
	body := JSONResponse{Data: v}
	for _, opt := range opts {
		opt(&status, &body)
	}
	return jsonResponse{status: status, body: body}
}

// RawJSON encodes v as-is without the envelope. Provider webhook acks use
// it.
func RawJSON(status int, v any) Response {
	return jsonResponse{status: status, body: v}
}

// errorResponse defers err to the configured ErrorHandler.
type errorResponse struct{ err error }

func (e errorResponse) Render(w http.ResponseWriter, r *http.Request) error { return e.err }

// Error returns a Response that routes err through Wrap's error handler.
func Error(err error) Response {
	if err == nil {
		err = ErrInternalServerError
	}
	return errorResponse{err: err}
}
