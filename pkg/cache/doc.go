// Package cache provides the two-tier caching core fronting all external
// data access: a fast in-process tier (L1) backed by a durable Redis
// tier (L2).
//
// The facade implements the following behavior:
//
// - L1-first reads with promotion of L2 hits into L1
// - Write-through to both tiers, with L2 failures absorbed
// - Stale-while-revalidate freshness policy with bounded grace windows
// - LRU eviction under entry-count and byte budgets
// - Pass-through mode when the fast tier binding is absent
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	// Create Redis client
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	// Create the tiers and the facade
//	store := cache.NewStore(cache.DefaultStoreConfig(), logger)
//	defer store.Close()
//	durable := cache.NewRedisStore(redisClient)
//	c := cache.New(store, durable, dedupe.New(logger), logger)
//
//	// Write through both tiers
//	key := cache.NewKey("sector", "SPY_snapshot")
//	c.Set(ctx, key, payload, time.Hour, 10*time.Minute)
//
//	// Read (L1 first, then L2 with promotion)
//	entry, tier := c.Get(ctx, key)
//	if tier == cache.HitNone {
//		// Both tiers missed - fetch upstream and Set
//	}
//
// # Stale-While-Revalidate
//
//	data, stale, err := c.GetWithRevalidate(ctx, key, time.Hour, 10*time.Minute,
//		func() ([]byte, error) {
//			return fetchSnapshot(ctx)
//		})
//
// A fresh entry returns immediately. A stale entry within its grace
// window returns immediately with stale=true while the refresh runs in
// the background; at most one refresh per key is in flight at a time. A
// hard-expired or missing entry fetches synchronously, coalesced with
// concurrent fetches of the same key.
//
// # Degraded Operation
//
// The facade consults a single availability gate before every operation:
// when constructed without a fast tier binding it runs in pass-through
// mode, where Get always reports a miss, Set accepts and drops the
// value, and GetWithRevalidate fetches synchronously. The application
// stays correct with caching fully disabled, just slower. A missing or
// failing durable tier degrades independently: the facade keeps serving
// from L1 and absorbs every L2 error into miss semantics.
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - cct_cache_hits_total{tier} - Cache hits by tier (l1, l2)
//   - cct_cache_misses_total - Reads that missed both tiers
//   - cct_cache_evictions_total - LRU evictions under capacity pressure
//   - cct_cache_entries - Current L1 entry count
//   - cct_cache_size_bytes - Current L1 payload bytes
//   - cct_cache_errors_total{operation} - Absorbed tier errors
//   - cct_cache_revalidations_total{result} - Background refreshes
//
// # Concurrency
//
// The in-process tier's state is owned by a single goroutine; public
// methods post operations to it and wait, so concurrent callers are
// serialized without locks inside the store. Durable tier operations are
// issued concurrently with no cross-call ordering; last-write-wins is
// acceptable because each key has a single logical writer by convention.
package cache
