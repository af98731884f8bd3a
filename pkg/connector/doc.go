// Package connector provides the framework Singer taps are built on.
//
// # Architecture Overview
//
// The connector package is organized into several sub-packages:
//
//   - core: Defines the Tap interface every tap implements, together with
//     the MessageWriter and Checkpointer the sync loop reports through.
//
//   - base: Provides BaseTap, the foundation that implements the HTTP
//     client, authentication, rate limiting, circuit breaking, retries and
//     progress reporting. Its Syncer drives declarative REST streams:
//     pagination, parent/child partitions, bookmarks and property
//     selection. All taps should embed BaseTap.
//
//   - sources: Contains the tap implementations. Each tap registers itself
//     on import.
//
//   - registry: Implements a factory pattern for tap discovery and
//     instantiation by name.
//
// # Core Concepts
//
// Unified Configuration: All taps use config.TapConfig, which carries the
// connector settings plus standardized sections for performance, timeouts,
// reliability, observability, state and output.
//
// Streams: A stream is declared with base.StreamConfig (path, records
// path, keys, replication) and customized with hooks. Child streams name
// their parent and are synced once per parent record with the context the
// parent's ChildContext hook returns.
//
// Production Features:
//   - Circuit breakers for automatic failure detection and recovery
//   - Token bucket rate limiting
//   - Retries with exponential backoff that honor Retry-After
//   - Schema validation of every record
//   - Structured errors with retryable classification
//
// # Example Usage
//
//	cfg := config.NewTapConfig()
//	cfg.Store = "my-store"
//	cfg.AccessToken = "shpat_..."
//
//	tap, err := registry.CreateTap("tap-shopify", cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer tap.Close(ctx)
//
//	catalog, err := tap.Discover(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	w := singer.NewWriter(os.Stdout, 0)
//	err = tap.Sync(ctx, catalog, nil, w, nil)
//
// # Best Practices
//
// 1. Always use BaseTap as the foundation for new taps
// 2. Use structured errors from the errors package
// 3. Declare parents before their children
// 4. Keep per-pagination state in hooks, one instance per tap
// 5. Implement proper cleanup in Close() methods
// 6. Handle context cancellation properly
package connector
