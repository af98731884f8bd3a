package shopify

import (
	"github.com/Matatika/tap-shopify/pkg/config"
	"github.com/Matatika/tap-shopify/pkg/connector/base"
	"github.com/Matatika/tap-shopify/pkg/singer"
)

// Stream names
const (
	StreamAbandonedCheckouts = "abandoned_checkouts"
	StreamCollects           = "collects"
	StreamCustomCollections  = "custom_collections"
	StreamCustomers          = "customers"
	StreamLocations          = "locations"
	StreamInventoryLevels    = "inventory_levels"
	StreamInventoryItems     = "inventory_items"
	StreamMetafields         = "metafields"
	StreamOrders             = "orders"
	StreamProducts           = "products"
	StreamTransactions       = "transactions"
	StreamRefunds            = "refunds"
	StreamUsers              = "users"
)

// streamDef is one row of the stream table. Every stream gets the shared
// first-page parameters and deduplication; params and transforms add to
// them.
type streamDef struct {
	base.StreamConfig
	params     []paramsFunc
	transforms []func(base.Record)
}

func incremental(name, path, records, key string) streamDef {
	return streamDef{StreamConfig: base.StreamConfig{
		Name:              name,
		Path:              path,
		RecordsPath:       records,
		ReplicationKey:    key,
		ReplicationMethod: singer.ReplicationIncremental,
	}}
}

func fullTable(name, path, records string) streamDef {
	return streamDef{StreamConfig: base.StreamConfig{
		Name:              name,
		Path:              path,
		RecordsPath:       records,
		ReplicationMethod: singer.ReplicationFullTable,
	}}
}

func (d streamDef) with(fn func(*streamDef)) streamDef {
	fn(&d)
	return d
}

// streamTable lists the streams in sync order. Parents come before their
// children.
func streamTable() []streamDef {
	return []streamDef{
		incremental(StreamAbandonedCheckouts, "/checkouts.json", "checkouts", "updated_at").with(func(d *streamDef) {
			d.Schema = abandonedCheckoutSchema()
		}),
		incremental(StreamCollects, "/collects.json", "collects", "id").with(func(d *streamDef) {
			d.Schema = collectSchema()
			d.params = []paramsFunc{sinceID}
		}),
		incremental(StreamCustomCollections, "/custom_collections.json", "custom_collections", "updated_at").with(func(d *streamDef) {
			d.Schema = customCollectionSchema()
		}),
		incremental(StreamCustomers, "/customers.json", "customers", "updated_at").with(func(d *streamDef) {
			d.Schema = customerSchema()
		}),
		fullTable(StreamLocations, "/locations.json", "locations").with(func(d *streamDef) {
			d.Schema = locationSchema()
			d.Hooks.ChildContext = contextFrom("location_id", "id")
		}),
		fullTable(StreamInventoryLevels, "/inventory_levels.json", "inventory_levels").with(func(d *streamDef) {
			d.PrimaryKeys = []string{"inventory_item_id"}
			d.Parent = StreamLocations
			d.Schema = inventoryLevelSchema()
			d.params = []paramsFunc{locationIDs}
			d.Hooks.ChildContext = contextFrom("inventory_item_id", "inventory_item_id")
		}),
		fullTable(StreamInventoryItems, "/inventory_items/{inventory_item_id}.json", "[inventory_item]").with(func(d *streamDef) {
			d.Parent = StreamInventoryLevels
			d.Schema = inventoryItemSchema()
		}),
		incremental(StreamMetafields, "/metafields.json", "metafields", "updated_at").with(func(d *streamDef) {
			d.Schema = metafieldSchema()
		}),
		incremental(StreamOrders, "/orders.json", "orders", "updated_at").with(func(d *streamDef) {
			d.Schema = orderSchema()
			d.params = []paramsFunc{anyStatus}
			d.transforms = []func(base.Record){decimalFields("subtotal_price", "total_price")}
			d.Hooks.ChildContext = contextFrom("order_id", "id")
		}),
		incremental(StreamProducts, "/products.json", "products", "updated_at").with(func(d *streamDef) {
			d.Schema = productSchema()
		}),
		fullTable(StreamTransactions, "/orders/{order_id}/transactions.json", "transactions").with(func(d *streamDef) {
			d.Parent = StreamOrders
			d.Schema = transactionSchema()
		}),
		fullTable(StreamRefunds, "/orders/{order_id}/refunds.json", "refunds").with(func(d *streamDef) {
			d.Parent = StreamOrders
			d.Schema = refundSchema()
		}),
		fullTable(StreamUsers, "/users.json", "users").with(func(d *streamDef) {
			d.Schema = userSchema()
		}),
	}
}

// newStreams compiles the stream table for one tap. Hooks keep pagination
// state, so streams are never shared between taps.
func newStreams(cfg *config.TapConfig) ([]*base.Stream, error) {
	defs := streamTable()
	streams := make([]*base.Stream, 0, len(defs))
	for _, def := range defs {
		sc := def.StreamConfig
		if sc.PrimaryKeys == nil {
			sc.PrimaryKeys = []string{"id"}
		}

		key := ""
		if sc.ReplicationMethod == singer.ReplicationIncremental {
			key = sc.ReplicationKey
		}
		dedup := newDeduper(sc.Name)
		sc.Hooks.URLParams = firstPageParams(cfg, key, def.params...)
		sc.Hooks.PostProcess = dedup.postProcess(def.transforms...)
		sc.Hooks.PaginationDone = dedup.reset

		s, err := base.NewStream(sc)
		if err != nil {
			return nil, err
		}
		streams = append(streams, s)
	}
	return streams, nil
}
