package registry

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Matatika/tap-shopify/pkg/config"
	"github.com/Matatika/tap-shopify/pkg/connector/core"
	"github.com/Matatika/tap-shopify/pkg/errors"
	"github.com/Matatika/tap-shopify/pkg/logger"
)

// Registry manages tap registration and instantiation
type Registry struct {
	taps   map[string]core.TapFactory
	mu     sync.RWMutex
	logger *zap.Logger
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new tap registry
func NewRegistry() *Registry {
	return &Registry{
		taps:   make(map[string]core.TapFactory),
		logger: logger.Get().With(zap.String("component", "connector_registry")),
	}
}

// RegisterTap registers a tap factory
func (r *Registry) RegisterTap(name string, factory core.TapFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.taps[name]; exists {
		return errors.Newf(errors.ErrorTypeConfig, "tap %s already registered", name)
	}

	r.taps[name] = factory
	r.logger.Debug("tap registered", zap.String("name", name))
	return nil
}

// CreateTap creates a tap instance
func (r *Registry) CreateTap(name string, cfg *config.TapConfig) (core.Tap, error) {
	r.mu.RLock()
	factory, exists := r.taps[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Newf(errors.ErrorTypeConfig, "tap %s not found", name)
	}

	tap, err := factory(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create tap "+name)
	}
	return tap, nil
}

// ListTaps returns the registered tap names in order
func (r *Registry) ListTaps() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	taps := make([]string, 0, len(r.taps))
	for name := range r.taps {
		taps = append(taps, name)
	}
	sort.Strings(taps)
	return taps
}

// HasTap checks if a tap is registered
func (r *Registry) HasTap(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.taps[name]
	return exists
}

// Clear removes all registered taps (mainly for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.taps = make(map[string]core.TapFactory)
}

// Global registry functions

// RegisterTap registers a tap in the global registry
func RegisterTap(name string, factory core.TapFactory) error {
	return globalRegistry.RegisterTap(name, factory)
}

// CreateTap creates a tap from the global registry
func CreateTap(name string, cfg *config.TapConfig) (core.Tap, error) {
	return globalRegistry.CreateTap(name, cfg)
}

// ListTaps returns registered taps from the global registry
func ListTaps() []string {
	return globalRegistry.ListTaps()
}

// HasTap checks if a tap is registered in the global registry
func HasTap(name string) bool {
	return globalRegistry.HasTap(name)
}

// GetRegistry returns the global registry instance.
func GetRegistry() *Registry {
	return globalRegistry
}
