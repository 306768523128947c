package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/srkrambo/mock-server/internal/auth"
	"github.com/srkrambo/mock-server/internal/resources"
)

func hasContentType(r *http.Request, want string) bool {
	return strings.Contains(r.Header.Get("Content-Type"), want)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !hasContentType(r, "application/json") {
		writeError(w, http.StatusBadRequest, "Bad Request", "Content-Type must be application/json")
		return
	}

	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" || body.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": "Username and password required",
		})
		return
	}

	stored, ok := s.cfg.Auth.BasicUsers[body.Username]
	if !ok || !auth.CheckPassword(stored, body.Password) {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"error": "Invalid credentials",
		})
		return
	}

	token, err := s.codec.Issue(body.Username, map[string]any{
		"name": body.Username,
		"role": "user",
	})
	if err != nil {
		writeStorageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Login successful",
		"token":   token,
		"user": map[string]interface{}{
			"username": body.Username,
			"role":     "user",
		},
	})
}

func (s *Server) handleOAuthToken(w http.ResponseWriter, r *http.Request) {
	if !hasContentType(r, "application/json") {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":             "invalid_request",
			"error_description": "Content-Type must be application/json",
		})
		return
	}

	var body struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
		GrantType    string `json:"grant_type"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	if body.GrantType != "client_credentials" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": "unsupported_grant_type",
		})
		return
	}

	if body.ClientID != s.cfg.Auth.OAuth2.ClientID || body.ClientSecret != s.cfg.Auth.OAuth2.ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"error": "invalid_client",
		})
		return
	}

	token, err := s.codec.Issue("oauth2-client", map[string]any{
		"client_id": body.ClientID,
		"scope":     "read write",
	})
	if err != nil {
		writeStorageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(s.cfg.Auth.JWT.Expiration.Seconds()),
	})
}

func (s *Server) handleGenerateKey(w http.ResponseWriter, r *http.Request) {
	generatedBy := "anonymous"
	if s.cfg.Auth.KeygenRequiresGoogle {
		google := auth.Google{Codec: s.codec, Sessions: s.sess, LocalIssuer: s.cfg.Auth.JWT.Issuer}
		result := google.Authenticate(r)
		if !result.Success {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
				"error":    "Unauthorized",
				"message":  "Google authentication is required to generate API keys. Please login with Google first.",
				"auth_url": "/auth/google",
			})
			return
		}
		generatedBy = result.Identity
	}

	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "application/json") {
		writeError(w, http.StatusBadRequest, "Bad Request", "Content-Type must be application/json")
		return
	}

	var body struct {
		Metadata map[string]string `json:"metadata"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	metadata := body.Metadata
	if metadata == nil {
		metadata = make(map[string]string)
	}
	if s.cfg.Auth.KeygenRequiresGoogle {
		metadata["generated_by"] = generatedBy
		metadata["auth_method"] = "google"
	}

	key, err := s.keys.Generate(r.Context(), metadata)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":            true,
		"message":            "API key generated successfully",
		"api_key":            key.Key,
		"created_at":         key.CreatedAt,
		"generated_by":       generatedBy,
		"usage_instructions": "Include this API key in the X-API-Key header for all requests",
	})
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	if s.cfg.IsProduction() {
		valid := false
		if key := r.Header.Get("X-API-Key"); key != "" {
			var err error
			valid, _, err = s.keys.Validate(r.Context(), key)
			if err != nil {
				writeStorageError(w, err)
				return
			}
		}
		if !valid {
			writeError(w, http.StatusUnauthorized, "Unauthorized", "API key is required to list API keys")
			return
		}
	}

	keys, err := s.keys.List(r.Context(), true)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	masked := make([]map[string]interface{}, 0, len(keys))
	for _, key := range keys {
		masked = append(masked, map[string]interface{}{
			"key_masked":   key.Masked(),
			"created_at":   key.CreatedAt,
			"active":       key.Active,
			"last_used_at": key.LastUsedAt,
			"usage_count":  key.UsageCount,
			"revoked_at":   key.RevokedAt,
			"metadata":     key.Metadata,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"keys":    masked,
		"total":   len(masked),
		"note":    "Keys are masked for security. Use the full key provided during generation.",
	})
}

func (s *Server) handleGoogleStart(w http.ResponseWriter, r *http.Request) {
	if !s.google.Configured() {
		writeError(w, http.StatusInternalServerError, "Configuration Error",
			"Google OAuth is not configured. Please set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET environment variables.")
		return
	}

	session := auth.NewSession()
	session.OAuthState = uuid.NewString()
	if err := s.sess.Put(r.Context(), session); err != nil {
		writeStorageError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.google.AuthCodeURL(session.OAuthState), http.StatusFound)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if errParam := query.Get("error"); errParam != "" {
		writeError(w, http.StatusBadRequest, "Authentication Failed",
			"Google authentication was cancelled or failed: "+errParam)
		return
	}

	code, state := query.Get("code"), query.Get("state")
	if code == "" || state == "" {
		writeError(w, http.StatusBadRequest, "Bad Request", "Missing code or state parameter")
		return
	}

	session := auth.SessionFromRequest(r, s.sess)
	if session == nil || session.OAuthState == "" || session.OAuthState != state {
		writeError(w, http.StatusUnauthorized, "Authentication Failed", "Invalid state parameter")
		return
	}

	user, err := s.google.Exchange(r.Context(), code)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Authentication Failed", "Failed to exchange authorization code")
		return
	}

	session.Authenticated = true
	session.Email = user.Email
	session.Name = user.Name
	session.Picture = user.Picture
	session.GoogleID = user.ID
	session.OAuthState = ""
	if err := s.sess.Put(r.Context(), session); err != nil {
		writeStorageError(w, err)
		return
	}

	token, err := s.codec.Issue(user.Email, map[string]any{
		"iss":     "accounts.google.com",
		"email":   user.Email,
		"name":    user.Name,
		"picture": user.Picture,
	})
	if err != nil {
		writeStorageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Google authentication successful",
		"user": map[string]interface{}{
			"email":   user.Email,
			"name":    user.Name,
			"picture": user.Picture,
		},
		"token": token,
		"usage": `Use this token in the Authorization header as "Bearer <token>" for API requests`,
	})
}

func (s *Server) handleGoogleLogout(w http.ResponseWriter, r *http.Request) {
	if session := auth.SessionFromRequest(r, s.sess); session != nil {
		if err := s.sess.Delete(r.Context(), session.ID); err != nil {
			writeStorageError(w, err)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:    auth.SessionCookie,
		Value:   "",
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Unix(0, 0),
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Logged out successfully",
	})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.saver.List()
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"files": files})
}

func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	list, err := s.data.List(r.Context())
	if err != nil {
		writeStorageError(w, err)
		return
	}
	if list == nil {
		list = []resources.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"resources": list})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"environment": s.cfg.Environment,
		"time":        time.Now().UTC().Format(time.RFC3339),
	})
}
