package main

import (
	"io"
	"log"

	"github.com/srkrambo/mock-server/internal/config"
	"github.com/srkrambo/mock-server/internal/kv"
)

// backends bundles one key-value store per state collection. Each collection
// gets its own namespace so sweeps and listings never cross components.
type backends struct {
	rateLimits     kv.Store
	apiKeys        kv.Store
	sessions       kv.Store
	uploadSessions kv.Store
	data           kv.Store

	closers []io.Closer
}

// Close releases any connection-backed stores.
func (b *backends) Close() {
	for _, c := range b.closers {
		if err := c.Close(); err != nil {
			log.Printf("⚠️  Warning: failed to close store: %v", err)
		}
	}
}

// openBackends selects the storage backend. Redis wins when configured,
// --memory forces volatile stores, otherwise state persists as JSON files
// under the storage root.
func openBackends(cfg *config.Config, memory bool) (*backends, error) {
	if cfg.Redis.Addr != "" {
		return openRedisBackends(cfg)
	}
	if memory {
		return &backends{
			rateLimits:     kv.NewMemoryStore(),
			apiKeys:        kv.NewMemoryStore(),
			sessions:       kv.NewMemoryStore(),
			uploadSessions: kv.NewMemoryStore(),
			data:           kv.NewMemoryStore(),
		}, nil
	}
	return openFileBackends(cfg)
}

func openFileBackends(cfg *config.Config) (*backends, error) {
	b := &backends{}
	for _, target := range []struct {
		store *kv.Store
		dir   string
	}{
		{&b.rateLimits, cfg.Storage.RateLimitsDir()},
		{&b.apiKeys, cfg.Storage.APIKeysDir()},
		{&b.sessions, cfg.Storage.SessionsDir()},
		{&b.uploadSessions, cfg.Storage.UploadSessionsDir()},
		{&b.data, cfg.Storage.DataDir()},
	} {
		store, err := kv.NewFileStore(target.dir)
		if err != nil {
			return nil, err
		}
		*target.store = store
	}
	return b, nil
}

func openRedisBackends(cfg *config.Config) (*backends, error) {
	redisCfg := kv.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	b := &backends{}
	for _, target := range []struct {
		store  *kv.Store
		prefix string
	}{
		{&b.rateLimits, "rate_limits:"},
		{&b.apiKeys, "api_keys:"},
		{&b.sessions, "sessions:"},
		{&b.uploadSessions, "upload_sessions:"},
		{&b.data, "data:"},
	} {
		store, err := kv.NewRedisStore(redisCfg, target.prefix)
		if err != nil {
			return nil, err
		}
		*target.store = store
		b.closers = append(b.closers, store)
	}
	return b, nil
}
