// Package sources links every tap into the registry. Import it for side
// effects from binaries that create taps by name.
package sources

import (
	"github.com/Matatika/tap-shopify/pkg/config"
	"github.com/Matatika/tap-shopify/pkg/connector/core"
	"github.com/Matatika/tap-shopify/pkg/connector/registry"

	// Import all taps to trigger init() registration
	_ "github.com/Matatika/tap-shopify/pkg/connector/sources/shopify"
)

// NewTap creates the named tap from the registry.
func NewTap(name string, cfg *config.TapConfig) (core.Tap, error) {
	return registry.CreateTap(name, cfg)
}
