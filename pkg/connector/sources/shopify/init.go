package shopify

import (
	"github.com/Matatika/tap-shopify/pkg/config"
	"github.com/Matatika/tap-shopify/pkg/connector/core"
	"github.com/Matatika/tap-shopify/pkg/connector/registry"
)

func init() {
	// Register the Shopify tap in the global registry
	_ = registry.RegisterTap(Name, func(cfg *config.TapConfig) (core.Tap, error) {
		return NewTap(cfg)
	})
}
