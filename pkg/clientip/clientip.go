package clientip

import (
	"net"
	"net/http"
	"strings"
)

// DefaultHeaders suit a Cloudflare or nginx fronted deployment.
var DefaultHeaders = []string{"CF-Connecting-IP", "X-Forwarded-For", "X-Real-IP"}

// FromRequest returns the normalized client IP, or "" if none is valid.
func FromRequest(r *http.Request, headers ...string) string {
	for _, name := range headers {
		value := r.Header.Get(name)
		if value == "" {
			continue
		}
		if http.CanonicalHeaderKey(name) == "X-Forwarded-For" {
			for part := range strings.SplitSeq(value, ",") {
				if ip := normalize(part); ip != "" {
					return ip
				}
			}
			continue
		}
		if ip := normalize(value); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return normalize(r.RemoteAddr)
	}
	return normalize(host)
}

func normalize(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}
