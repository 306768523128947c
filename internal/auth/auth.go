// Package auth implements the credential checkers behind the gateway: one
// Method implementation per authentication scheme, a bearer token codec and
// a session store for the browser login flow.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/srkrambo/mock-server/internal/config"
)

// Result is the per-request outcome of an authentication attempt. It is
// never persisted.
type Result struct {
	Success  bool
	Identity string
	Error    string
	Claims   map[string]any
}

func success(identity string, claims map[string]any) Result {
	return Result{Success: true, Identity: identity, Claims: claims}
}

func failure(reason string) Result {
	return Result{Success: false, Error: reason}
}

// Method checks the credentials on a request. Implementations are stateless;
// the api_key method updates usage stats as a side effect of key validation,
// via the key checker it was built with.
type Method interface {
	Name() string
	Authenticate(r *http.Request) Result
}

// KeyChecker validates a persisted API key. Implemented by apikeys.Manager.
type KeyChecker interface {
	Check(ctx context.Context, key string) (bool, error)
}

// ForConfig builds the Method selected by the configuration. The method
// string is interpreted exactly once, here; everything downstream dispatches
// through the interface.
func ForConfig(cfg config.AuthConfig, keys KeyChecker, sessions Sessions, codec *TokenCodec) Method {
	if !cfg.Enabled {
		return None{}
	}

	switch cfg.Method {
	case "basic":
		return Basic{Users: cfg.BasicUsers}
	case "api_key":
		return APIKey{StaticKeys: cfg.StaticAPIKeys, Keys: keys}
	case "jwt":
		return Bearer{Codec: codec}
	case "openid":
		return Bearer{Codec: codec, RequireIssuer: true}
	case "oauth2":
		return OAuth2{}
	case "mtls":
		return MTLS{}
	case "google":
		return Google{Codec: codec, Sessions: sessions, LocalIssuer: cfg.JWT.Issuer}
	default:
		return None{}
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
// The second return is a failure reason when extraction fails.
func bearerToken(r *http.Request) (string, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "Authorization header missing"
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", "Invalid Bearer token format. Expected: Bearer <token>"
	}
	return strings.TrimSpace(parts[1]), ""
}
