package gateway

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/srkrambo/mock-server/internal/apikeys"
	"github.com/srkrambo/mock-server/internal/auth"
	"github.com/srkrambo/mock-server/internal/config"
	"github.com/srkrambo/mock-server/internal/kv"
	"github.com/srkrambo/mock-server/internal/ratelimit"
	"github.com/srkrambo/mock-server/internal/resources"
	"github.com/srkrambo/mock-server/internal/upload"
)

// stubGoogle satisfies auth.GoogleProvider without network access.
type stubGoogle struct {
	user       *auth.GoogleUser
	err        error
	configured bool
}

func (s stubGoogle) Configured() bool { return s.configured }

func (s stubGoogle) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (s stubGoogle) Exchange(context.Context, string) (*auth.GoogleUser, error) {
	return s.user, s.err
}

// newTestServer builds a fully wired server over in-memory backends. Rate
// limiting starts disabled; tests that exercise it flip it back on.
func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.Storage.Root = t.TempDir()
	cfg.RateLimit.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	codec := auth.NewTokenCodec(cfg.Auth.JWT.Secret, cfg.Auth.JWT.Issuer, cfg.Auth.JWT.Expiration)
	keys := apikeys.NewManager(kv.NewMemoryStore(),
		apikeys.WithStaticKeys(cfg.Auth.StaticAPIKeys),
		apikeys.WithProductionMode(cfg.IsProduction()))

	engine, err := upload.NewEngine(kv.NewMemoryStore(), filepath.Join(cfg.Storage.Root, "uploads"), cfg.Tus.MaxSize)
	require.NoError(t, err)
	saver, err := upload.NewSaver(filepath.Join(cfg.Storage.Root, "uploads"), cfg.MaxUploadSize())
	require.NoError(t, err)

	return New(cfg, Deps{
		Limiter:  ratelimit.New(kv.NewMemoryStore()),
		Keys:     keys,
		Sessions: auth.NewSessionStore(kv.NewMemoryStore()),
		Codec:    codec,
		Google:   stubGoogle{configured: true, user: &auth.GoogleUser{ID: "g-1", Email: "dev@example.com", Name: "Dev"}},
		Engine:   engine,
		Saver:    saver,
		Data:     resources.NewStore(kv.NewMemoryStore()),
	})
}
