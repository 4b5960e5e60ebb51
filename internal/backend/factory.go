// Package backend builds the data ports for the configured backend.
package backend

import (
	"context"
	"fmt"
	"sync"

	"tani/internal/baas"
	"tani/internal/core"
	applog "tani/internal/log"
	"tani/internal/memory"
	"tani/internal/metrics"
	"tani/internal/ports"
	"tani/internal/remote"
)

// Result is a constructed backend. Memory is set only for the memory
// backend.
type Result struct {
	Type   BackendType
	Ports  ports.Backend
	Memory *memory.Store
}

// New builds the backend. Data calls take their bearer token from tokens,
// which may be a TokenRelay attached later.
func New(cfg Config, tokens ports.TokenSource, m *metrics.Metrics, logger *applog.Logger) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = applog.Discard()
	}
	logger = logger.WithComponent(applog.ComponentBackend)

	switch cfg.Type {
	case RemoteBackend:
		client, err := baas.New(baas.Config{
			URL:     cfg.BaaSURL,
			AnonKey: cfg.AnonKey,
			Timeout: cfg.Timeout,
			Logger:  logger.Logger,
			Observe: m.ObserveRemote,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize backend client: %w", err)
		}
		logger.Info("Initialized remote backend", "url", cfg.BaaSURL)
		return &Result{Type: RemoteBackend, Ports: remote.New(client, tokens).Backend()}, nil

	case MemoryBackend:
		store := memory.New()
		store.SetTokenSource(tokens)
		if cfg.SeedEmail != "" {
			store.AddUser(cfg.SeedEmail, cfg.SeedPassword, "Superadmin", core.RoleSuperadmin)
		}
		logger.Info("Initialized memory backend", "seeded", cfg.SeedEmail != "")
		return &Result{Type: MemoryBackend, Ports: store.Backend(), Memory: store}, nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Type)
	}
}

// TokenRelay forwards AccessToken to a source attached after the backend
// is built. The session manager needs the backend before it can hand out
// tokens for it.
type TokenRelay struct {
	mu  sync.RWMutex
	src ports.TokenSource
}

func (r *TokenRelay) Attach(src ports.TokenSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.src = src
}

func (r *TokenRelay) AccessToken(ctx context.Context) (string, error) {
	r.mu.RLock()
	src := r.src
	r.mu.RUnlock()
	if src == nil {
		return "", ports.ErrUnauthorized
	}
	return src.AccessToken(ctx)
}
