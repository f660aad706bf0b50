// Package binder fills typed request values from HTTP requests.
//
// JSON decodes strict JSON bodies for the billing API. Raw captures webhook
// bodies byte for byte, bounded by a size limit, so provider signatures can
// be verified over the exact payload. Binders return ErrBinderNotApplicable
// when they have nothing to bind, which handler.Wrap skips.
package binder
