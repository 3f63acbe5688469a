// Package discovery provides the engine that inventories a Cloudflare
// account and reconciles it with a software catalog.
// Every run lists each enabled kind, enriches and maps each resource to a
// catalog entity, and submits the complete entity set for the account as one
// full mutation. The catalog removes whatever is no longer present.
//
// # Startup sequence
//
//  1. EngineConfigFromViper(engineType, version). Fail: return/exit
//  2. NewCloudflareEngine(ctx, engineConfig, recorder). Fail: return/exit
//  3. Serve /healthz and /metrics
//  4. VerifyToken. Transient API failures are retried with backoff, a
//     rejected token is reported via SetInitError and the process idles
//  5. Scheduler.Start(ctx) until SIGTERM
//
// # Error handling
//
// A core kind (workers, pages, r2, d1, kv, queues) that cannot be listed
// fails the run with a KindDiscoveryFailure and nothing is submitted, since a
// partial set would delete real entities from the catalog. The remaining
// kinds are best-effort and contribute zero entities when listing fails.
//
// A single resource that fails to enrich or map is logged and skipped, so is
// a resource whose entity name was already taken earlier in the run.
//
// A catalog that rejects the mutation fails the run with a
// ReconciliationFailure. The next scheduled run resubmits the full set.
package discovery
