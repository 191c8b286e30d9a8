// Package metrics provides the centralized Prometheus metrics registry
// for the caching subsystem. All metrics are defined in their respective
// packages (cache, dedupe, upstream) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the subsystem.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - cct_cache_hits_total{tier} (Counter): Cache hits by tier (l1, l2)
//   - cct_cache_misses_total (Counter): Reads that missed both tiers
//   - cct_cache_evictions_total (Counter): LRU evictions under capacity pressure
//   - cct_cache_entries (Gauge): Current in-process tier entry count
//   - cct_cache_size_bytes (Gauge): Current in-process tier payload bytes
//   - cct_cache_errors_total{operation} (Counter): Absorbed tier operation errors
//   - cct_cache_revalidations_total{result} (Counter): Background refreshes by result (ok, failed, skipped)
//
// Dedup Metrics (pkg/dedupe):
//   - cct_dedupe_requests_total (Counter): Deduplicated fetch requests
//   - cct_dedupe_coalesced_total (Counter): Requests that joined an in-flight fetch
//   - cct_dedupe_abandoned_total (Counter): In-flight fetches abandoned past their timeout
//
// Upstream Metrics (pkg/upstream):
//   - cct_upstream_requests_total{provider, status} (Counter): Requests by provider and HTTP status
//   - cct_upstream_request_duration_seconds{provider} (Histogram): Request duration by provider
//   - cct_upstream_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - cct_upstream_not_modified_total{provider} (Counter): 304 Not Modified responses
//   - cct_upstream_retries_total{error_class} (Counter): Retry attempts by error class
//   - cct_upstream_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - cct_upstream_retry_exhausted_total{error_class} (Counter): Fetches that exhausted max retries
//   - cct_quota_remaining{provider} (Gauge): Requests remaining in the provider quota window
//   - cct_quota_blocks_total{provider} (Counter): Fetches blocked by an exhausted quota
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(cct_cache_hits_total[5m])) /
//   (sum(rate(cct_cache_hits_total[5m])) + sum(rate(cct_cache_misses_total[5m])))
//
//   # Dedup Rate (fraction of fetches served by coalescing)
//   rate(cct_dedupe_coalesced_total[5m]) / rate(cct_dedupe_requests_total[5m])
//
//   # Eviction Pressure
//   rate(cct_cache_evictions_total[5m])
//
//   # Occupancy vs Capacity
//   cct_cache_size_bytes
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(cct_upstream_request_duration_seconds_bucket[5m]))
//
//   # Revalidation Failure Rate
//   rate(cct_cache_revalidations_total{result="failed"}[5m])
