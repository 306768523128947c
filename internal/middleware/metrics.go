package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/srkrambo/mock-server/internal/metrics"
)

// Metrics records per-request Prometheus metrics
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		metrics.IncrementConcurrentRequests()
		defer metrics.DecrementConcurrentRequests()

		wrapped := newResponseWriter(w)
		endpoint := sanitizeEndpoint(r.URL.Path)

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		statusStr := strconv.Itoa(wrapped.statusCode)

		metrics.RecordRequestDuration(r.Method, endpoint, statusStr, duration)
		metrics.RecordRequest(r.Method, endpoint, statusStr)
	})
}

// sanitizeEndpoint collapses variable path segments to keep label
// cardinality bounded. Fixed routes pass through, upload ids are folded,
// and arbitrary resource paths are reduced to their collection segment.
func sanitizeEndpoint(path string) string {
	switch path {
	case "", "/":
		return "/"
	case "/login", "/oauth/token", "/upload", "/files", "/resources",
		"/health", "/metrics", "/api/generate-key", "/api/keys":
		return path
	}
	if strings.HasPrefix(path, "/auth/") {
		return path
	}
	if strings.HasPrefix(path, "/upload/") {
		return "/upload/:id"
	}

	segments := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 2)
	if len(segments) == 2 {
		return "/" + segments[0] + "/:path"
	}
	return "/" + segments[0]
}
