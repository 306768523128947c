package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/srkrambo/mock-server/internal/config"
)

// Google authenticates via a bearer token minted by the Google login flow,
// or via an authenticated browser session. Tokens are accepted when their
// issuer references the Google identity provider or this server itself.
type Google struct {
	Codec       *TokenCodec
	Sessions    Sessions
	LocalIssuer string
}

func (Google) Name() string { return "google" }

func (g Google) Authenticate(r *http.Request) Result {
	if token, reason := bearerToken(r); reason == "" {
		claims, err := g.Codec.Decode(token)
		if err == nil {
			iss, _ := claims["iss"].(string)
			if strings.Contains(iss, "accounts.google.com") || strings.Contains(iss, g.LocalIssuer) {
				identity := "google-user"
				if email, _ := claims["email"].(string); email != "" {
					identity = email
				} else if sub, _ := claims["sub"].(string); sub != "" {
					identity = sub
				}
				return success(identity, claims)
			}
		}
	}

	if session := SessionFromRequest(r, g.Sessions); session != nil && session.Authenticated {
		identity := session.Email
		if identity == "" {
			identity = "google-user"
		}
		return success(identity, map[string]any{
			"email":   session.Email,
			"name":    session.Name,
			"picture": session.Picture,
		})
	}

	return failure("Google authentication required. Please login with Google first.")
}

// GoogleUser is the profile returned by the identity provider.
type GoogleUser struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// GoogleProvider abstracts the external identity provider so the callback
// handler can be tested without network access.
type GoogleProvider interface {
	// Configured reports whether client credentials are present.
	Configured() bool
	// AuthCodeURL builds the browser redirect URL carrying the CSRF state.
	AuthCodeURL(state string) string
	// Exchange trades an authorization code for the user's profile.
	Exchange(ctx context.Context, code string) (*GoogleUser, error)
}

// HTTPGoogleProvider talks to the real endpoints from the configuration.
type HTTPGoogleProvider struct {
	cfg    config.GoogleConfig
	client *http.Client
}

// NewGoogleProvider creates a provider for the configured endpoints.
func NewGoogleProvider(cfg config.GoogleConfig) *HTTPGoogleProvider {
	return &HTTPGoogleProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *HTTPGoogleProvider) Configured() bool {
	return p.cfg.ClientID != "" && p.cfg.ClientSecret != ""
}

func (p *HTTPGoogleProvider) AuthCodeURL(state string) string {
	params := url.Values{
		"client_id":     {p.cfg.ClientID},
		"redirect_uri":  {p.cfg.RedirectURI},
		"response_type": {"code"},
		"scope":         {strings.Join(p.cfg.Scopes, " ")},
		"state":         {state},
		"access_type":   {"offline"},
		"prompt":        {"consent"},
	}
	return p.cfg.AuthURI + "?" + params.Encode()
}

func (p *HTTPGoogleProvider) Exchange(ctx context.Context, code string) (*GoogleUser, error) {
	form := url.Values{
		"code":          {code},
		"client_id":     {p.cfg.ClientID},
		"client_secret": {p.cfg.ClientSecret},
		"redirect_uri":  {p.cfg.RedirectURI},
		"grant_type":    {"authorization_code"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token exchange failed with status %d", resp.StatusCode)
	}

	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	return p.userInfo(ctx, token.AccessToken)
}

func (p *HTTPGoogleProvider) userInfo(ctx context.Context, accessToken string) (*GoogleUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.UserInfoURI, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user info request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("user info request failed with status %d", resp.StatusCode)
	}

	var user GoogleUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}
	return &user, nil
}
