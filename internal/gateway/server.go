package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/srkrambo/mock-server/internal/apikeys"
	"github.com/srkrambo/mock-server/internal/auth"
	"github.com/srkrambo/mock-server/internal/config"
	"github.com/srkrambo/mock-server/internal/middleware"
	"github.com/srkrambo/mock-server/internal/ratelimit"
	"github.com/srkrambo/mock-server/internal/resources"
	"github.com/srkrambo/mock-server/internal/upload"
)

// Deps are the collaborators the server dispatches to. All of them are
// injected so tests can wire in-memory backends.
type Deps struct {
	Limiter  *ratelimit.Limiter
	Keys     *apikeys.Manager
	Sessions auth.Sessions
	Codec    *auth.TokenCodec
	Google   auth.GoogleProvider
	Engine   *upload.Engine
	Saver    *upload.Saver
	Data     *resources.Store
}

// Server owns the pipeline and the HTTP handlers.
type Server struct {
	cfg     *config.Config
	limiter *ratelimit.Limiter
	method  auth.Method
	keys    *apikeys.Manager
	sess    auth.Sessions
	codec   *auth.TokenCodec
	google  auth.GoogleProvider
	engine  *upload.Engine
	saver   *upload.Saver
	data    *resources.Store
}

// New builds a server. The authentication method is resolved from the
// configuration exactly once, here.
func New(cfg *config.Config, deps Deps) *Server {
	return &Server{
		cfg:     cfg,
		limiter: deps.Limiter,
		method:  auth.ForConfig(cfg.Auth, deps.Keys, deps.Sessions, deps.Codec),
		keys:    deps.Keys,
		sess:    deps.Sessions,
		codec:   deps.Codec,
		google:  deps.Google,
		engine:  deps.Engine,
		saver:   deps.Saver,
		data:    deps.Data,
	}
}

// Router assembles the full handler chain: recovery, logging, metrics, CORS,
// then the gatekeeping pipeline, then the routes. Any path without a
// dedicated route falls through to the generic CRUD dispatcher.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecovery().Middleware)
	r.Use(middleware.NewLogger(s.cfg.IsProduction()).Middleware)
	r.Use(middleware.Metrics)

	if s.cfg.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORS.AllowedOrigins,
			AllowedMethods: s.cfg.CORS.AllowedMethods,
			AllowedHeaders: s.cfg.CORS.AllowedHeaders,
			ExposedHeaders: []string{
				"Location", "Upload-Offset", "Upload-Length",
				"Tus-Resumable", "Tus-Version", "Tus-Extension", "Tus-Max-Size",
				"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset",
			},
			MaxAge: s.cfg.CORS.MaxAge,
		}))
	}

	r.Use(NewPipeline(s.RateLimitStage(), s.AuthStage()).Middleware)

	r.Post("/login", s.handleLogin)
	r.Post("/oauth/token", s.handleOAuthToken)

	r.Get("/auth/google", s.handleGoogleStart)
	r.Get("/auth/google/callback", s.handleGoogleCallback)
	r.Post("/auth/google/logout", s.handleGoogleLogout)

	r.Post("/api/generate-key", s.handleGenerateKey)
	r.Get("/api/keys", s.handleListKeys)

	r.HandleFunc("/upload", s.handleUpload)
	r.HandleFunc("/upload/*", s.handleUpload)

	r.Get("/files", s.handleListFiles)
	r.Get("/resources", s.handleListResources)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	// Everything else is the generic CRUD surface, including extra methods
	// on the routes above.
	r.NotFound(s.handleResource)
	r.MethodNotAllowed(s.handleResource)

	return r
}
