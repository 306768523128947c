package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srkrambo/mock-server/internal/config"
)

func doJSON(t *testing.T, handler http.Handler, method, path string, body string, mutate func(*http.Request)) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	r := httptest.NewRequest(method, path, reader)
	if body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	if mutate != nil {
		mutate(r)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), "body: %s", rec.Body.String())
	}
	return rec, decoded
}

func TestLoginFlow(t *testing.T) {
	router := newTestServer(t, nil).Router()

	rec, body := doJSON(t, router, http.MethodPost, "/login", `{"username":"admin","password":"admin123"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["token"])

	rec, body = doJSON(t, router, http.MethodPost, "/login", `{"username":"admin","password":"admin124"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", body["error"])

	// JSON only.
	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("username=admin&password=admin123"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, r)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestOAuthTokenGrant(t *testing.T) {
	router := newTestServer(t, nil).Router()

	rec, body := doJSON(t, router, http.MethodPost, "/oauth/token",
		`{"client_id":"mock-client-id","client_secret":"mock-client-secret","grant_type":"client_credentials"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bearer", body["token_type"])
	assert.Equal(t, float64(3600), body["expires_in"])
	assert.NotEmpty(t, body["access_token"])

	rec, body = doJSON(t, router, http.MethodPost, "/oauth/token",
		`{"client_id":"mock-client-id","client_secret":"mock-client-secret","grant_type":"password"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unsupported_grant_type", body["error"])

	rec, body = doJSON(t, router, http.MethodPost, "/oauth/token",
		`{"client_id":"mock-client-id","client_secret":"wrong","grant_type":"client_credentials"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_client", body["error"])
}

func TestResourceLifecycle(t *testing.T) {
	router := newTestServer(t, nil).Router()

	rec, _ := doJSON(t, router, http.MethodPost, "/items/1", `{"a":1,"b":2}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Shallow merge: incoming keys win, untouched keys survive.
	rec, _ = doJSON(t, router, http.MethodPatch, "/items/1", `{"b":3,"c":4}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := doJSON(t, router, http.MethodGet, "/items/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{
		"a": float64(1),
		"b": float64(3),
		"c": float64(4),
	}, body["data"])

	// PUT replaces wholesale.
	rec, _ = doJSON(t, router, http.MethodPut, "/items/1", `{"only":"this"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, body = doJSON(t, router, http.MethodGet, "/items/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{"only": "this"}, body["data"])

	rec, _ = doJSON(t, router, http.MethodDelete, "/items/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = doJSON(t, router, http.MethodGet, "/items/1", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Resource '/items/1' not found", body["message"])
}

func TestResourceContentTypePolicing(t *testing.T) {
	router := newTestServer(t, nil).Router()

	r := httptest.NewRequest(http.MethodPost, "/items/2", strings.NewReader(`{"a":1}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing Content-Type")

	r = httptest.NewRequest(http.MethodPost, "/items/2", strings.NewReader("<xml/>"))
	r.Header.Set("Content-Type", "application/xml")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	// Form-encoded bodies are accepted for storage.
	r = httptest.NewRequest(http.MethodPost, "/items/2", strings.NewReader("a=1&b=two"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func tusRequest(method, path string, body []byte, headers map[string]string) *http.Request {
	r := httptest.NewRequest(method, path, bytes.NewReader(body))
	r.Header.Set("Tus-Resumable", "1.0.0")
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

func TestTusUploadSequence(t *testing.T) {
	router := newTestServer(t, nil).Router()

	// Create a session with a declared length of 100 bytes.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, tusRequest(http.MethodPost, "/upload", nil, map[string]string{"Upload-Length": "100"}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created["upload_id"].(string)
	assert.Equal(t, "/upload/"+id, rec.Header().Get("Location"))
	assert.Equal(t, "1.0.0", rec.Header().Get("Tus-Resumable"))

	patch := func(offset string, n int) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, tusRequest(http.MethodPatch, "/upload/"+id, bytes.Repeat([]byte{'x'}, n), map[string]string{
			"Upload-Offset": offset,
			"Content-Type":  "application/offset+octet-stream",
		}))
		return rec
	}

	rec2 := patch("0", 40)
	require.Equal(t, http.StatusOK, rec2.Code, rec2.Body.String())
	assert.Equal(t, "40", rec2.Header().Get("Upload-Offset"))

	// Replaying the first chunk conflicts and leaves the offset alone.
	rec2 = patch("0", 40)
	assert.Equal(t, http.StatusConflict, rec2.Code)

	rec2 = httptest.NewRecorder()
	router.ServeHTTP(rec2, tusRequest(http.MethodHead, "/upload/"+id, nil, nil))
	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Equal(t, "40", rec2.Header().Get("Upload-Offset"))
	assert.Equal(t, "100", rec2.Header().Get("Upload-Length"))

	rec2 = patch("40", 60)
	require.Equal(t, http.StatusOK, rec2.Code)
	var done map[string]interface{}
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &done))
	assert.Equal(t, true, done["complete"])
	assert.Equal(t, float64(100), done["offset"])
}

func TestTusProtocolValidation(t *testing.T) {
	router := newTestServer(t, nil).Router()

	// Unsupported version is rejected before any state lookup.
	rec := httptest.NewRecorder()
	r := tusRequest(http.MethodPost, "/upload", nil, map[string]string{"Upload-Length": "10"})
	r.Header.Set("Tus-Resumable", "0.2.2")
	router.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unsupported TUS version")

	// Create without a declared length.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, tusRequest(http.MethodPost, "/upload", nil, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Upload-Length")

	// Patch against an unknown session.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, tusRequest(http.MethodPatch, "/upload/tus_missing", []byte("x"), map[string]string{
		"Upload-Offset": "0",
		"Content-Type":  "application/offset+octet-stream",
	}))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Patch with the wrong content type marker.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, tusRequest(http.MethodPatch, "/upload/tus_missing", []byte("x"), map[string]string{
		"Upload-Offset": "0",
		"Content-Type":  "text/plain",
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Capability probe.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, tusRequest(http.MethodOptions, "/upload", nil, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1.0.0", rec.Header().Get("Tus-Version"))
	assert.Equal(t, "creation,termination", rec.Header().Get("Tus-Extension"))
	assert.NotEmpty(t, rec.Header().Get("Tus-Max-Size"))
}

func TestPlainUploads(t *testing.T) {
	router := newTestServer(t, nil).Router()

	// Raw body upload.
	r := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("raw bytes"))
	r.Header.Set("Content-Type", "application/octet-stream")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"upload_type":"raw"`)

	// Base64 upload with a data URI prefix.
	rec, body := doJSON(t, router, http.MethodPost, "/upload",
		`{"type":"base64","filename":"pic.png","content":"data:image/png;base64,cGF5bG9hZA=="}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "base64", body["upload_type"])
	assert.Equal(t, float64(7), body["size"])

	rec, body = doJSON(t, router, http.MethodPost, "/upload", `{"type":"base64","filename":"x.bin"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing filename or content", body["error"])

	// Named PUT upload.
	r = httptest.NewRequest(http.MethodPut, "/upload/report.bin", strings.NewReader("content"))
	r.Header.Set("Content-Type", "application/octet-stream")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "report.bin")

	// Everything shows up in the listing.
	rec, body = doJSON(t, router, http.MethodGet, "/files", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["files"], 3)
}

func TestUploadSizeCeiling(t *testing.T) {
	router := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.MaxUploadSize = 10
	}).Router()

	r := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(strings.Repeat("x", 11)))
	r.Header.Set("Content-Type", "application/octet-stream")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestAPIKeyEndpoints(t *testing.T) {
	server := newTestServer(t, nil)
	router := server.Router()

	// Keygen requires Google auth by default.
	rec, body := doJSON(t, router, http.MethodPost, "/api/generate-key", `{}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "/auth/google", body["auth_url"])

	// A token minted by the Google flow unlocks it.
	token, err := server.codec.Issue("dev@example.com", map[string]any{
		"iss":   "accounts.google.com",
		"email": "dev@example.com",
	})
	require.NoError(t, err)

	rec, body = doJSON(t, router, http.MethodPost, "/api/generate-key", `{}`, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	apiKey := body["api_key"].(string)
	assert.True(t, strings.HasPrefix(apiKey, "mk_"))
	assert.Equal(t, "dev@example.com", body["generated_by"])

	// The listing masks key material.
	rec, body = doJSON(t, router, http.MethodGet, "/api/keys", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	keys := body["keys"].([]interface{})
	require.Len(t, keys, 1)
	masked := keys[0].(map[string]interface{})["key_masked"].(string)
	assert.Contains(t, masked, "...")
	assert.NotContains(t, rec.Body.String(), apiKey)
}

func TestGoogleOAuthFlow(t *testing.T) {
	server := newTestServer(t, nil)
	router := server.Router()

	// Start redirects to the provider and plants the state cookie.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/google", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	location := rec.Header().Get("Location")
	assert.Contains(t, location, "state=")

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	state := location[strings.Index(location, "state=")+len("state="):]

	// Callback with the matching state completes the login.
	r := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=abc&state="+state, nil)
	r.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["token"])

	// A mismatched state is rejected.
	r = httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=abc&state=forged", nil)
	r.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProductionEnforcementEndToEnd(t *testing.T) {
	server := newTestServer(t, func(cfg *config.Config) {
		cfg.Environment = config.EnvProduction
		cfg.Auth.Method = "jwt"
		cfg.Auth.JWT.Secret = "production-secret"
	})
	router := server.Router()

	token, err := server.codec.Issue("admin", nil)
	require.NoError(t, err)

	// Valid bearer credentials alone are rejected.
	rec, _ := doJSON(t, router, http.MethodGet, "/users/1", "", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Listing keys also requires a key in production.
	rec, _ = doJSON(t, router, http.MethodGet, "/api/keys", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	key, err := server.keys.Generate(httptest.NewRequest(http.MethodGet, "/", nil).Context(), nil)
	require.NoError(t, err)

	rec, body := doJSON(t, router, http.MethodGet, "/users/1", "", func(r *http.Request) {
		r.Header.Set("X-API-Key", key.Key)
	})
	assert.Equal(t, http.StatusNotFound, rec.Code, "authenticated, resource simply absent")
	assert.Equal(t, "Not found", body["error"])
}

func TestRateLimitEndToEnd(t *testing.T) {
	router := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit.Enabled = true
		cfg.RateLimit.IP = config.WindowLimit{Enabled: true, MaxRequests: 3, Window: time.Minute}
		cfg.RateLimit.Global = config.WindowLimit{Enabled: false}
		cfg.RateLimit.Endpoints = nil
	}).Router()

	for i := 0; i < 3; i++ {
		rec, _ := doJSON(t, router, http.MethodGet, "/health", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, body := doJSON(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Rate limit exceeded. Please try again later.", body["message"])
	assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
}
