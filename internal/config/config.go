// Package config loads server configuration from an optional YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// EnvLocal is the default trusted development mode.
	EnvLocal = "local"
	// EnvProduction enables API key enforcement, strict client IP detection
	// and the hardened upload ceiling.
	EnvProduction = "production"
)

// Config holds all mockd configuration.
type Config struct {
	Environment string          `yaml:"environment"`
	Server      ServerConfig    `yaml:"server"`
	Storage     StorageConfig   `yaml:"storage"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	Auth        AuthConfig      `yaml:"auth"`
	Tus         TusConfig       `yaml:"tus"`
	CORS        CORSConfig      `yaml:"cors"`
	Redis       RedisConfig     `yaml:"redis"`
	Sweep       SweepConfig     `yaml:"sweep"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host                    string        `yaml:"host"`
	Port                    string        `yaml:"port"`
	BaseURL                 string        `yaml:"base_url"`
	ReadTimeout             time.Duration `yaml:"read_timeout"`
	WriteTimeout            time.Duration `yaml:"write_timeout"`
	ShutdownTimeout         time.Duration `yaml:"shutdown_timeout"`
	MaxUploadSize           int64         `yaml:"max_upload_size"`
	ProductionMaxUploadSize int64         `yaml:"production_max_upload_size"`
}

// StorageConfig points at the on-disk state root. Each component keeps its
// state in its own subdirectory.
type StorageConfig struct {
	Root string `yaml:"root"`
}

// DataDir is where flat CRUD resources are stored.
func (s StorageConfig) DataDir() string { return filepath.Join(s.Root, "data") }

// UploadsDir is where uploaded file content is stored.
func (s StorageConfig) UploadsDir() string { return filepath.Join(s.Root, "uploads") }

// SessionsDir holds browser session records.
func (s StorageConfig) SessionsDir() string { return filepath.Join(s.Root, "sessions") }

// UploadSessionsDir holds resumable upload session records.
func (s StorageConfig) UploadSessionsDir() string { return filepath.Join(s.Root, "upload_sessions") }

// RateLimitsDir holds rate counter records.
func (s StorageConfig) RateLimitsDir() string { return filepath.Join(s.Root, "rate_limits") }

// APIKeysDir holds the persisted API key collection.
func (s StorageConfig) APIKeysDir() string { return filepath.Join(s.Root, "api_keys") }

// WindowLimit is one fixed-window rate limit: at most MaxRequests per Window.
type WindowLimit struct {
	Enabled     bool          `yaml:"enabled"`
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// RateLimitConfig holds the three limit classes.
type RateLimitConfig struct {
	Enabled   bool                   `yaml:"enabled"`
	IP        WindowLimit            `yaml:"ip"`
	Global    WindowLimit            `yaml:"global"`
	Endpoints map[string]WindowLimit `yaml:"endpoints"`
}

// AuthConfig selects the authentication method and its credential tables.
type AuthConfig struct {
	Enabled                 bool              `yaml:"enabled"`
	Method                  string            `yaml:"method"`
	ProductionEnforceAPIKey bool              `yaml:"production_enforce_api_key"`
	KeygenRequiresGoogle    bool              `yaml:"keygen_requires_google"`
	BasicUsers              map[string]string `yaml:"basic_users"`
	StaticAPIKeys           []string          `yaml:"static_api_keys"`
	JWT                     JWTConfig         `yaml:"jwt"`
	OAuth2                  OAuth2Config      `yaml:"oauth2"`
	Google                  GoogleConfig      `yaml:"google"`
}

// JWTConfig holds bearer token issuance settings. Tokens are signed with
// HMAC-SHA256.
type JWTConfig struct {
	Secret     string        `yaml:"secret"`
	Issuer     string        `yaml:"issuer"`
	Expiration time.Duration `yaml:"expiration"`
}

// OAuth2Config holds the client-credentials grant client table.
type OAuth2Config struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// GoogleConfig holds the Google OAuth browser flow settings.
type GoogleConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURI  string   `yaml:"redirect_uri"`
	AuthURI      string   `yaml:"auth_uri"`
	TokenURI     string   `yaml:"token_uri"`
	UserInfoURI  string   `yaml:"user_info_uri"`
	Scopes       []string `yaml:"scopes"`
}

// TusConfig holds resumable upload protocol settings.
type TusConfig struct {
	Enabled bool  `yaml:"enabled"`
	MaxSize int64 `yaml:"max_size"`
}

// CORSConfig holds the CORS allow-lists.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// SweepConfig schedules background cleanup of stale state. Schedule is a
// standard five-field cron expression.
type SweepConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Schedule        string        `yaml:"schedule"`
	RateLimitMaxAge time.Duration `yaml:"rate_limit_max_age"`
	UploadMaxAge    time.Duration `yaml:"upload_max_age"`
}

// RedisConfig enables the Redis storage backend when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Default returns the built-in configuration, matching a trusted local
// development setup.
func Default() *Config {
	return &Config{
		Environment: EnvLocal,
		Server: ServerConfig{
			Host:                    "0.0.0.0",
			Port:                    "8080",
			BaseURL:                 "http://localhost:8080",
			ReadTimeout:             15 * time.Second,
			WriteTimeout:            15 * time.Second,
			ShutdownTimeout:         30 * time.Second,
			MaxUploadSize:           50 * 1024 * 1024,
			ProductionMaxUploadSize: 1024,
		},
		Storage: StorageConfig{Root: "storage"},
		RateLimit: RateLimitConfig{
			Enabled: true,
			IP:      WindowLimit{Enabled: true, MaxRequests: 100, Window: time.Minute},
			Global:  WindowLimit{Enabled: true, MaxRequests: 1000, Window: time.Minute},
			Endpoints: map[string]WindowLimit{
				"/upload": {Enabled: true, MaxRequests: 10, Window: time.Minute},
				"/login":  {Enabled: true, MaxRequests: 5, Window: 5 * time.Minute},
			},
		},
		Auth: AuthConfig{
			Enabled:                 true,
			Method:                  "none",
			ProductionEnforceAPIKey: true,
			KeygenRequiresGoogle:    true,
			BasicUsers: map[string]string{
				"admin": "admin123",
				"user":  "password",
			},
			StaticAPIKeys: []string{"test-api-key-123", "demo-key-456", "dev-key-789"},
			JWT: JWTConfig{
				Secret:     "your-secret-key-change-in-production",
				Issuer:     "mock-server",
				Expiration: time.Hour,
			},
			OAuth2: OAuth2Config{
				ClientID:     "mock-client-id",
				ClientSecret: "mock-client-secret",
			},
			Google: GoogleConfig{
				RedirectURI: "http://localhost:8080/auth/google/callback",
				AuthURI:     "https://accounts.google.com/o/oauth2/v2/auth",
				TokenURI:    "https://oauth2.googleapis.com/token",
				UserInfoURI: "https://www.googleapis.com/oauth2/v2/userinfo",
				Scopes:      []string{"openid", "email", "profile"},
			},
		},
		Tus: TusConfig{
			Enabled: true,
			MaxSize: 100 * 1024 * 1024,
		},
		Sweep: SweepConfig{
			Enabled:         true,
			Schedule:        "*/10 * * * *",
			RateLimitMaxAge: time.Hour,
			UploadMaxAge:    24 * time.Hour,
		},
		CORS: CORSConfig{
			Enabled:        true,
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS", "HEAD"},
			AllowedHeaders: []string{
				"Content-Type", "Authorization", "X-API-Key",
				"Upload-Offset", "Upload-Length", "Upload-Metadata", "Tus-Resumable",
			},
			MaxAge: 300,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file pointed
// to by MOCKD_CONFIG, and environment variable overrides, in that order.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("MOCKD_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the configuration.
func (c *Config) applyEnv() {
	c.Environment = getEnv("MOCKD_ENV", c.Environment)
	c.Server.Host = getEnv("MOCKD_HOST", c.Server.Host)
	c.Server.Port = getEnv("MOCKD_PORT", c.Server.Port)
	c.Server.BaseURL = getEnv("MOCKD_BASE_URL", c.Server.BaseURL)
	c.Storage.Root = getEnv("MOCKD_STORAGE_ROOT", c.Storage.Root)

	c.RateLimit.Enabled = getBoolEnv("MOCKD_RATE_LIMIT_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.IP.MaxRequests = getIntEnv("MOCKD_RATE_LIMIT_IP_MAX", c.RateLimit.IP.MaxRequests)
	c.RateLimit.IP.Window = getDurationEnv("MOCKD_RATE_LIMIT_IP_WINDOW", c.RateLimit.IP.Window)
	c.RateLimit.Global.MaxRequests = getIntEnv("MOCKD_RATE_LIMIT_GLOBAL_MAX", c.RateLimit.Global.MaxRequests)
	c.RateLimit.Global.Window = getDurationEnv("MOCKD_RATE_LIMIT_GLOBAL_WINDOW", c.RateLimit.Global.Window)

	c.Auth.Method = getEnv("MOCKD_AUTH_METHOD", c.Auth.Method)
	c.Auth.KeygenRequiresGoogle = getBoolEnv("MOCKD_KEYGEN_REQUIRES_GOOGLE", c.Auth.KeygenRequiresGoogle)
	c.Auth.JWT.Secret = getEnv("MOCKD_JWT_SECRET", c.Auth.JWT.Secret)
	c.Auth.JWT.Expiration = getDurationEnv("MOCKD_JWT_EXPIRATION", c.Auth.JWT.Expiration)

	if users := os.Getenv("MOCKD_BASIC_USERS"); users != "" {
		c.Auth.BasicUsers = parsePairs(users)
	}
	if keys := os.Getenv("MOCKD_STATIC_API_KEYS"); keys != "" {
		c.Auth.StaticAPIKeys = splitAndTrim(keys)
	}

	c.Auth.Google.ClientID = getEnv("GOOGLE_CLIENT_ID", c.Auth.Google.ClientID)
	c.Auth.Google.ClientSecret = getEnv("GOOGLE_CLIENT_SECRET", c.Auth.Google.ClientSecret)
	c.Auth.Google.RedirectURI = getEnv("GOOGLE_REDIRECT_URI", c.Auth.Google.RedirectURI)

	c.Redis.Addr = getEnv("MOCKD_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("MOCKD_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getIntEnv("MOCKD_REDIS_DB", c.Redis.DB)

	c.Sweep.Enabled = getBoolEnv("MOCKD_SWEEP_ENABLED", c.Sweep.Enabled)
	c.Sweep.Schedule = getEnv("MOCKD_SWEEP_SCHEDULE", c.Sweep.Schedule)

	c.Tus.MaxSize = getInt64Env("MOCKD_TUS_MAX_SIZE", c.Tus.MaxSize)
	c.Server.MaxUploadSize = getInt64Env("MOCKD_MAX_UPLOAD_SIZE", c.Server.MaxUploadSize)
	c.Server.ProductionMaxUploadSize = getInt64Env("MOCKD_PRODUCTION_MAX_UPLOAD_SIZE", c.Server.ProductionMaxUploadSize)
}

// Validate checks the configuration for unusable combinations.
func (c *Config) Validate() error {
	if c.Environment != EnvLocal && c.Environment != EnvProduction {
		return fmt.Errorf("invalid environment %q: must be %q or %q", c.Environment, EnvLocal, EnvProduction)
	}
	switch c.Auth.Method {
	case "none", "basic", "api_key", "jwt", "oauth2", "mtls", "openid", "google":
	default:
		return fmt.Errorf("unknown auth method %q", c.Auth.Method)
	}
	if c.Environment == EnvProduction && c.Auth.JWT.Secret == "your-secret-key-change-in-production" {
		return fmt.Errorf("MOCKD_JWT_SECRET must be set in production")
	}
	if c.RateLimit.IP.MaxRequests <= 0 || c.RateLimit.Global.MaxRequests <= 0 {
		return fmt.Errorf("rate limit thresholds must be positive")
	}
	return nil
}

// IsProduction reports whether the server runs in the hardened mode.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// MaxUploadSize returns the effective upload ceiling for the current mode.
func (c *Config) MaxUploadSize() int64 {
	if c.IsProduction() {
		return c.Server.ProductionMaxUploadSize
	}
	return c.Server.MaxUploadSize
}

// MaxTusSize returns the resumable upload ceiling for the current mode. The
// production cap applies to declared upload lengths too.
func (c *Config) MaxTusSize() int64 {
	if c.IsProduction() {
		return c.Server.ProductionMaxUploadSize
	}
	return c.Tus.MaxSize
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// parsePairs parses "user:pass,user2:pass2" into a map.
func parsePairs(raw string) map[string]string {
	pairs := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
		if len(parts) == 2 && parts[0] != "" {
			pairs[parts[0]] = parts[1]
		}
	}
	return pairs
}

func splitAndTrim(raw string) []string {
	var out []string
	for _, entry := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(entry); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
