package binder

import "net/http"

// RawBody is the unparsed request body with its headers. Signature checks
// need the exact bytes the sender signed.
type RawBody struct {
	Payload []byte
	Header  http.Header
}

// Raw reads at most limit bytes into a *RawBody target. Any other target
// type returns ErrBinderNotApplicable.
func Raw(limit int64) func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		dst, ok := v.(*RawBody)
		if !ok {
			return ErrBinderNotApplicable
		}
		dst.Header = r.Header
		if r.Body == nil {
			dst.Payload = nil
			return nil
		}
		body, err := readLimited(r.Body, limit)
		if err != nil {
			return err
		}
		dst.Payload = body
		return nil
	}
}
