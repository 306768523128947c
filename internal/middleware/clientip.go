// Package middleware holds the HTTP middleware shared by the router: request
// logging, panic recovery, metrics, and client address resolution.
package middleware

import (
	"net/http"
	"strings"
)

// ClientIP resolves the address used for per-client rate limiting. In
// production mode only the socket address counts, since forwarded headers are
// client-controlled. In local mode the headers are honored so tests can
// simulate many clients from one machine.
func ClientIP(r *http.Request, production bool) string {
	if !production {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			ips := strings.Split(xff, ",")
			return strings.TrimSpace(ips[0])
		}
		if xci := r.Header.Get("X-Client-IP"); xci != "" {
			return strings.TrimSpace(xci)
		}
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
