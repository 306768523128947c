package gateway

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/srkrambo/mock-server/internal/config"
	"github.com/srkrambo/mock-server/internal/metrics"
	"github.com/srkrambo/mock-server/internal/middleware"
	"github.com/srkrambo/mock-server/internal/ratelimit"
)

// RateLimitStage evaluates the per-IP, global, and per-endpoint ceilings in
// that order, stopping at the first one that denies. The denial response
// carries the failing check's limit, remaining, and reset headers.
func (s *Server) RateLimitStage() Stage {
	return Stage{
		Name: "rate_limit",
		Run: func(w http.ResponseWriter, r *http.Request) bool {
			if !s.cfg.RateLimit.Enabled {
				return true
			}

			ip := middleware.ClientIP(r, s.cfg.IsProduction())

			type check struct {
				identity string
				class    ratelimit.Class
				limit    config.WindowLimit
			}
			checks := []check{
				{ip, ratelimit.ClassIP, s.cfg.RateLimit.IP},
				{"global", ratelimit.ClassGlobal, s.cfg.RateLimit.Global},
			}
			if endpoint, limit, ok := s.endpointLimit(r.URL.Path); ok {
				checks = append(checks, check{ip + ":" + endpoint, ratelimit.ClassEndpoint, limit})
			}

			for _, c := range checks {
				if !c.limit.Enabled {
					continue
				}
				result, err := s.limiter.Check(r.Context(), c.identity, c.class, c.limit.MaxRequests, c.limit.Window)
				if err != nil {
					writeStorageError(w, err)
					return false
				}
				if !result.Allowed {
					metrics.RecordRateLimitHit(string(c.class))

					now := time.Now()
					w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
					w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
					w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
					writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
						"error":       "Too Many Requests",
						"message":     "Rate limit exceeded. Please try again later.",
						"retry_after": result.RetryAfter(now),
					})
					return false
				}
			}
			return true
		},
	}
}

// endpointLimit finds the per-endpoint limit applying to path, matched by
// longest configured prefix so /upload covers the whole upload subtree.
func (s *Server) endpointLimit(path string) (string, config.WindowLimit, bool) {
	var (
		best      string
		bestLimit config.WindowLimit
		found     bool
	)
	for endpoint, limit := range s.cfg.RateLimit.Endpoints {
		if path == endpoint || strings.HasPrefix(path, endpoint+"/") {
			if len(endpoint) > len(best) {
				best, bestLimit, found = endpoint, limit, true
			}
		}
	}
	return best, bestLimit, found
}

// AuthStage authenticates protected routes. Public routes implement their
// own authorization internally and pass through. In production mode with key
// enforcement, a valid X-API-Key is mandatory regardless of the configured
// authentication method.
func (s *Server) AuthStage() Stage {
	return Stage{
		Name: "auth",
		Run: func(w http.ResponseWriter, r *http.Request) bool {
			if isPublicRoute(r.Method, r.URL.Path) {
				return true
			}

			if s.cfg.IsProduction() && s.cfg.Auth.ProductionEnforceAPIKey {
				valid := false
				if key := r.Header.Get("X-API-Key"); key != "" {
					var err error
					valid, _, err = s.keys.Validate(r.Context(), key)
					if err != nil {
						writeStorageError(w, err)
						return false
					}
				}
				if !valid {
					metrics.RecordAPIKeyValidation("failure")
					writeError(w, http.StatusUnauthorized, "Unauthorized",
						"API key is required in production mode. Please provide a valid API key via X-API-Key header.")
					return false
				}
				metrics.RecordAPIKeyValidation("success")
				return true
			}

			result := s.method.Authenticate(r)
			if !result.Success {
				metrics.RecordAuthFailure(s.method.Name())
				writeError(w, http.StatusUnauthorized, "Authentication failed", result.Error)
				return false
			}
			return true
		},
	}
}

// isPublicRoute reports whether the route bypasses the standard
// authentication step. These routes authorize themselves: login checks
// credentials, uploads check protocol headers, the key endpoints apply
// their own policy.
func isPublicRoute(method, path string) bool {
	switch {
	case method == http.MethodPost && path == "/login":
		return true
	case method == http.MethodPost && path == "/oauth/token":
		return true
	case strings.HasPrefix(path, "/auth/"):
		return true
	case method == http.MethodPost && path == "/api/generate-key":
		return true
	case method == http.MethodGet && path == "/api/keys":
		return true
	case path == "/upload" || strings.HasPrefix(path, "/upload/"):
		return true
	case method == http.MethodGet && (path == "/files" || path == "/resources"):
		return true
	case path == "/health" || path == "/metrics":
		return true
	}
	return false
}
