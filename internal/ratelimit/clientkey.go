package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// ClientKey identifies the caller for bucket lookup: first X-Forwarded-For
// entry, then X-Real-IP, then the peer address. Never blank.
func ClientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}

	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}

	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	if addr != "" {
		return addr
	}

	return "unknown"
}
