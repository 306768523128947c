package auth

import (
	"encoding/base64"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// None accepts every request as the anonymous identity.
type None struct{}

func (None) Name() string { return "none" }

func (None) Authenticate(*http.Request) Result {
	return success("anonymous", nil)
}

// Basic checks an `Authorization: Basic <b64>` header against the configured
// user table. A stored password beginning with the bcrypt prefix is treated
// as a hash; anything else is compared verbatim.
type Basic struct {
	Users map[string]string
}

func (Basic) Name() string { return "basic" }

func (b Basic) Authenticate(r *http.Request) Result {
	header := r.Header.Get("Authorization")
	if header == "" {
		return failure("Authorization header missing")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Basic") {
		return failure("Invalid Basic Auth format. Expected: Basic <base64-credentials>")
	}
	encoded := strings.TrimSpace(parts[1])
	if encoded == "" {
		return failure("Empty credentials in Authorization header")
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return failure("Invalid base64 encoding in Authorization header")
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return failure("Invalid credentials format. Expected username:password")
	}
	username, password := credentials[0], credentials[1]

	stored, ok := b.Users[username]
	if !ok {
		return failure("Invalid credentials")
	}

	if !CheckPassword(stored, password) {
		return failure("Invalid credentials")
	}

	return success(username, nil)
}

// CheckPassword compares a provided password against the stored one. A
// stored value beginning with the bcrypt prefix is treated as a hash;
// anything else is compared verbatim. Shared by basic auth and the login
// endpoint.
func CheckPassword(stored, password string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	return stored == password
}

// APIKey checks the X-API-Key header against the configured static keys and
// the persisted key store.
type APIKey struct {
	StaticKeys []string
	Keys       KeyChecker
}

func (APIKey) Name() string { return "api_key" }

func (a APIKey) Authenticate(r *http.Request) Result {
	key := r.Header.Get("X-API-Key")
	if key == "" {
		return failure("API key missing")
	}

	for _, static := range a.StaticKeys {
		if key == static {
			return success("api-user", map[string]any{"key": key})
		}
	}

	if a.Keys != nil {
		valid, err := a.Keys.Check(r.Context(), key)
		if err != nil {
			return failure("API key validation unavailable")
		}
		if valid {
			return success("api-user", map[string]any{"key": key})
		}
	}

	return failure("Invalid API key")
}

// Bearer checks a JWT bearer token: three segments, decodable payload, exp
// not in the past. With RequireIssuer set it also demands an iss claim
// (OpenID Connect mode).
type Bearer struct {
	Codec         *TokenCodec
	RequireIssuer bool
}

func (b Bearer) Name() string {
	if b.RequireIssuer {
		return "openid"
	}
	return "jwt"
}

func (b Bearer) Authenticate(r *http.Request) Result {
	token, reason := bearerToken(r)
	if reason != "" {
		return failure(reason)
	}

	claims, err := b.Codec.Decode(token)
	if err != nil {
		if b.RequireIssuer {
			return failure("Invalid OpenID Connect token")
		}
		return failure("Invalid or expired JWT token")
	}

	if b.RequireIssuer {
		if iss, _ := claims["iss"].(string); iss == "" {
			return failure("Invalid OpenID Connect token")
		}
	}

	identity := "jwt-user"
	if b.RequireIssuer {
		identity = "openid-user"
	}
	if sub, _ := claims["sub"].(string); sub != "" {
		identity = sub
	}
	return success(identity, claims)
}

// OAuth2 performs placeholder resource-access validation: the bearer token
// only has to be present and non-trivially long. There is no introspection
// endpoint to call in a mock.
type OAuth2 struct{}

func (OAuth2) Name() string { return "oauth2" }

func (OAuth2) Authenticate(r *http.Request) Result {
	token, reason := bearerToken(r)
	if reason != "" {
		return failure(reason)
	}
	if len(token) <= 10 {
		return failure("Invalid OAuth2 token")
	}
	return success("oauth2-user", map[string]any{"token": token})
}

// MTLS requires a transport-layer client certificate.
type MTLS struct{}

func (MTLS) Name() string { return "mtls" }

func (MTLS) Authenticate(r *http.Request) Result {
	if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
		return failure("Client certificate required")
	}
	subject := r.TLS.PeerCertificates[0].Subject.String()
	return success("mtls-user", map[string]any{"cert_dn": subject})
}
