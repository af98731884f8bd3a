// Package shopify implements the Shopify Admin REST API tap.
//
// The tap offers one stream per Admin resource. Nested resources are child
// streams synced once per parent record:
//
//	locations -> inventory_levels -> inventory_items
//	orders    -> transactions, refunds
//
// Pages are requested with cursor pagination: the first request carries
// limit, the bookmark or start date and the stream's own filters; every
// following request uses exactly the query of the previous response's
// Link rel="next" URL.
package shopify

import (
	"context"

	"go.uber.org/zap"

	"github.com/Matatika/tap-shopify/pkg/config"
	"github.com/Matatika/tap-shopify/pkg/connector/base"
	"github.com/Matatika/tap-shopify/pkg/connector/core"
	"github.com/Matatika/tap-shopify/pkg/errors"
	"github.com/Matatika/tap-shopify/pkg/json"
	"github.com/Matatika/tap-shopify/pkg/schema"
	"github.com/Matatika/tap-shopify/pkg/singer"
)

// Name is the registry name of the tap.
const Name = "tap-shopify"

// Version is set at build time with -ldflags.
var Version = "0.1.0"

// Tap extracts Shopify Admin resources.
type Tap struct {
	*base.BaseTap
	syncer *base.Syncer
}

// NewTap creates a Shopify tap. Options customize the underlying BaseTap,
// e.g. its transport in tests.
func NewTap(cfg *config.TapConfig, opts ...base.Option) (*Tap, error) {
	bt, err := base.NewBaseTap(Name, Version, cfg, opts...)
	if err != nil {
		return nil, err
	}

	streams, err := newStreams(cfg)
	if err != nil {
		return nil, err
	}
	syncer, err := base.NewSyncer(bt, streams)
	if err != nil {
		return nil, err
	}

	return &Tap{BaseTap: bt, syncer: syncer}, nil
}

// Discover returns the catalog of every stream, all selected.
func (t *Tap) Discover(context.Context) (*singer.Catalog, error) {
	return t.syncer.Catalog(), nil
}

// Sync extracts the selected streams starting from state.
func (t *Tap) Sync(ctx context.Context, catalog *singer.Catalog, state *singer.State, out core.MessageWriter, checkpoint core.Checkpointer) error {
	return t.syncer.Sync(ctx, catalog, state, out, checkpoint)
}

// Check fetches the shop resource to verify the store URL and credentials.
func (t *Tap) Check(ctx context.Context) error {
	resp, err := t.Get(ctx, "shop", t.GetConfig().APIBase()+"/shop.json", nil)
	if err != nil {
		return errors.Wrap(err, typeOf(err), "connection check failed")
	}

	var body struct {
		Shop struct {
			ID       json.Number `json:"id"`
			Name     string      `json:"name"`
			Domain   string      `json:"myshopify_domain"`
			PlanName string      `json:"plan_name"`
		} `json:"shop"`
	}
	if err := json.UnmarshalUseNumber(resp.Body, &body); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to decode shop")
	}
	if body.Shop.ID == "" {
		return errors.New(errors.ErrorTypeData, "response carries no shop")
	}

	t.GetLogger().Info("connection check succeeded",
		zap.String("shop", body.Shop.Name),
		zap.String("domain", body.Shop.Domain),
		zap.String("plan", body.Shop.PlanName))
	return nil
}

// Streams returns the stream summaries in sync order.
func (t *Tap) Streams() []core.StreamInfo {
	return t.syncer.StreamInfos()
}

// About describes the tap, its settings and streams.
func (t *Tap) About() *core.About {
	return &core.About{
		Name:        Name,
		Version:     Version,
		Description: "Singer tap for the Shopify Admin REST API",
		Capabilities: []string{
			core.CapabilityCatalog,
			core.CapabilityDiscover,
			core.CapabilityState,
			core.CapabilityAbout,
			core.CapabilityTest,
			core.CapabilityPropertySelection,
		},
		Settings: settingsSchema(),
		Streams:  t.syncer.StreamInfos(),
	}
}

func describe(s *schema.Schema, description string) *schema.Schema {
	s.Description = description
	return s
}

// settingsSchema documents the connector settings.
func settingsSchema() map[string]interface{} {
	doc := schema.ToJSONSchema(schema.Record(schema.Properties{
		"access_token":  describe(schema.String(), "The access token to authenticate with the Shopify API"),
		"store":         describe(schema.String(), "Shopify store id, use the prefix of your admin url e.g. https://[your store].myshopify.com/admin"),
		"start_date":    describe(schema.DateTime(), "The earliest record date to sync"),
		"admin_url":     describe(schema.String(), "The Admin url for your Shopify store (overrides 'store' property)"),
		"user_agent":    describe(schema.String(), "User-Agent header sent with every request"),
		"api_version":   describe(schema.String(), "Admin API version, default "+config.DefaultAPIVersion),
		"page_size":     describe(schema.Integer(), "Records per page, at most 250"),
		"client_id":     describe(schema.String(), "App client id, for the client credentials grant"),
		"client_secret": describe(schema.String(), "App client secret, for the client credentials grant"),
		"streams":       describe(schema.ArrayOf(schema.String()), "Streams to sync when no catalog is given"),
	}))
	doc["required"] = []string{"store"}
	return doc
}

func typeOf(err error) errors.ErrorType {
	var e *errors.Error
	if errors.As(err, &e) {
		return e.Type
	}
	return errors.ErrorTypeConnection
}
