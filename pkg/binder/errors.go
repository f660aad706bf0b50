package binder

import "errors"

var (
	ErrBinderNotApplicable  = errors.New("binder not applicable")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrMissingContentType   = errors.New("missing content type")
	ErrFailedToParseJSON    = errors.New("failed to parse JSON request body")
	ErrBodyTooLarge         = errors.New("request body too large")
	ErrFailedToReadBody     = errors.New("failed to read request body")
)
