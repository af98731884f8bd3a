// Package state persists Singer bookmarks between runs.
//
// A Store loads the state a run resumes from and saves each state the run
// emits. Backends: in-memory (default), a local file, a Redis key, or an
// S3 object.
package state

import (
	"context"
	"sync"

	"github.com/Matatika/tap-shopify/pkg/config"
	"github.com/Matatika/tap-shopify/pkg/errors"
	"github.com/Matatika/tap-shopify/pkg/singer"
)

// Backend names
const (
	BackendMemory = ""
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendS3     = "s3"
)

// Store loads and saves tap state.
type Store interface {
	// Load returns the saved state, or an empty state if none exists.
	Load(ctx context.Context) (*singer.State, error)
	// Save replaces the saved state.
	Save(ctx context.Context, s *singer.State) error
	Close() error
}

// New creates the store selected by cfg.Backend.
func New(ctx context.Context, cfg config.StateConfig) (Store, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile:
		return NewFileStore(cfg.Path), nil
	case BackendRedis:
		return NewRedisStore(ctx, cfg)
	case BackendS3:
		return NewS3Store(ctx, cfg)
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown state backend %q", cfg.Backend)
	}
}

// MemoryStore keeps state for the lifetime of the process.
type MemoryStore struct {
	mu    sync.Mutex
	state *singer.State
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (m *MemoryStore) Load(context.Context) (*singer.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return singer.NewState(), nil
	}
	return m.state.Clone(), nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, s *singer.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s.Clone()
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }

func decode(data []byte) (*singer.State, error) {
	if len(data) == 0 {
		return singer.NewState(), nil
	}
	return singer.ParseState(data)
}
