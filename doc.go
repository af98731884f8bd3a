// Package tapshopify is a Singer tap for the Shopify Admin REST API. It
// extracts store resources and writes them as Singer SCHEMA, RECORD and
// STATE messages for any Singer target to load.
//
// # Architecture
//
// The tap is built on three layers:
//
// 1. Transport: an HTTP/2 client with token bucket rate limiting, a
// circuit breaker and retries that honor Retry-After (pkg/clients,
// pkg/connector/base).
//
// 2. Stream engine: declarative REST streams with cursor pagination,
// parent/child partitions, bookmarks, deduplication hooks and schema
// validation (pkg/connector/base).
//
// 3. Shopify streams: the resource table, per-stream query parameters,
// JSON schemas and record transforms (pkg/connector/sources/shopify).
//
// # Quick Start
//
// Discover the streams, then sync with a catalog and a state file:
//
//	tap-shopify --config config.json --discover > catalog.json
//	tap-shopify --config config.json --catalog catalog.json --state state.json
//
// A minimal config.json:
//
//	{
//	    "store": "my-store",
//	    "access_token": "${SHOPIFY_ACCESS_TOKEN}",
//	    "start_date": "2024-01-01T00:00:00Z"
//	}
//
// # Key Packages
//
//	pkg/connector    - Tap framework, registry and the Shopify tap
//	pkg/singer       - Singer messages, catalog and state
//	pkg/config       - Unified configuration management
//	pkg/state        - State stores (file, redis, s3)
//	pkg/sink         - Message output (stdout, compressed files, s3)
//	pkg/errors       - Structured error handling
//	pkg/logger       - Structured logging to stderr
//	pkg/metrics      - Prometheus metrics
//
// # Streams
//
//	abandoned_checkouts, collects, custom_collections, customers,
//	locations -> inventory_levels -> inventory_items, metafields,
//	orders -> transactions, refunds, products, users
//
// Incremental streams resume from the bookmarked updated_at (id for
// collects); the rest are synced in full every run.
//
// # Configuration
//
// The config file (JSON or YAML) carries the connector settings plus
// standard sections:
//
//	type TapConfig struct {
//	    Performance   PerformanceConfig   // Writer buffer
//	    Timeouts      TimeoutConfig       // Connection, request timeouts
//	    Reliability   ReliabilityConfig   // Retries, circuit breaker, rate limit
//	    Observability ObservabilityConfig // Logging, metrics, tracing
//	    State         StateConfig         // Bookmark store
//	    Output        OutputConfig        // Message destination
//	}
//
// Environment variables are supported with ${VAR_NAME} syntax, and every
// setting can be overridden with a TAP_SHOPIFY_ prefixed variable.
package tapshopify
