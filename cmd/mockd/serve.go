package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/srkrambo/mock-server/internal/apikeys"
	"github.com/srkrambo/mock-server/internal/auth"
	"github.com/srkrambo/mock-server/internal/config"
	"github.com/srkrambo/mock-server/internal/gateway"
	"github.com/srkrambo/mock-server/internal/ratelimit"
	"github.com/srkrambo/mock-server/internal/resources"
	"github.com/srkrambo/mock-server/internal/sweep"
	"github.com/srkrambo/mock-server/internal/upload"
)

var serveMemory bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mock backend server",
	Long: `Start the HTTP server with the configured authentication method,
rate limits, upload handlers, and CRUD surface.

Examples:
  mockd serve
  mockd serve --memory
  MOCKD_ENV=production MOCKD_JWT_SECRET=s3cret mockd serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveMemory, "memory", false, "Keep all state in memory instead of on disk")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log.Printf("✅ Configuration loaded (env: %s, auth: %s)", cfg.Environment, cfg.Auth.Method)

	stores, err := openBackends(cfg, serveMemory)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer stores.Close()

	switch {
	case cfg.Redis.Addr != "":
		log.Printf("✅ Connected to Redis at %s", cfg.Redis.Addr)
	case serveMemory:
		log.Println("ℹ️  State is in memory and will not survive a restart")
	default:
		log.Printf("✅ Storage root: %s", cfg.Storage.Root)
	}

	keys := apikeys.NewManager(stores.apiKeys,
		apikeys.WithStaticKeys(cfg.Auth.StaticAPIKeys),
		apikeys.WithProductionMode(cfg.IsProduction()))

	engine, err := upload.NewEngine(stores.uploadSessions, cfg.Storage.UploadsDir(), cfg.MaxTusSize())
	if err != nil {
		return fmt.Errorf("failed to initialize resumable uploads: %w", err)
	}
	saver, err := upload.NewSaver(cfg.Storage.UploadsDir(), cfg.MaxUploadSize())
	if err != nil {
		return fmt.Errorf("failed to initialize uploads: %w", err)
	}

	limiter := ratelimit.New(stores.rateLimits)
	server := gateway.New(cfg, gateway.Deps{
		Limiter:  limiter,
		Keys:     keys,
		Sessions: auth.NewSessionStore(stores.sessions),
		Codec:    auth.NewTokenCodec(cfg.Auth.JWT.Secret, cfg.Auth.JWT.Issuer, cfg.Auth.JWT.Expiration),
		Google:   auth.NewGoogleProvider(cfg.Auth.Google),
		Engine:   engine,
		Saver:    saver,
		Data:     resources.NewStore(stores.data),
	})

	runner := sweep.NewRunner(cfg.Sweep)
	runner.Register("rate_limits", cfg.Sweep.RateLimitMaxAge, limiter)
	runner.Register("uploads", cfg.Sweep.UploadMaxAge, engine)
	if err := runner.Start(); err != nil {
		return fmt.Errorf("failed to schedule sweeps: %w", err)
	}
	defer runner.Stop()
	if cfg.Sweep.Enabled {
		log.Printf("✅ Cleanup sweep scheduled: %s", cfg.Sweep.Schedule)
	}

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("🚀 mockd listening on http://%s", addr)
		log.Printf("📊 Health check at http://%s/health, metrics at http://%s/metrics", addr, addr)
		if cfg.IsProduction() {
			log.Println("🔒 Production mode: X-API-Key required, upload ceiling lowered")
		}
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("✅ Server stopped gracefully")
	return nil
}
