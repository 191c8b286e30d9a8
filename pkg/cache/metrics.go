package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by tier (l1, l2)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cct_cache_hits_total",
			Help: "Total number of cache hits by tier",
		},
		[]string{"tier"}, // "l1", "l2"
	)

	// CacheMisses tracks reads that missed both tiers
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cct_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// CacheEvictions tracks L1 entries removed under capacity pressure
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cct_cache_evictions_total",
			Help: "Total number of entries evicted from the in-process tier",
		},
	)

	// CacheEntries tracks the current L1 entry count
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cct_cache_entries",
			Help: "Current number of entries in the in-process tier",
		},
	)

	// CacheSizeBytes tracks the current L1 payload byte total
	CacheSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cct_cache_size_bytes",
			Help: "Current payload size of the in-process tier in bytes",
		},
	)

	// CacheErrors tracks absorbed tier operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cct_cache_errors_total",
			Help: "Total number of cache tier operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "clear"
	)

	// CacheRevalidations tracks background stale-while-revalidate refreshes
	CacheRevalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cct_cache_revalidations_total",
			Help: "Total number of background revalidations by result",
		},
		[]string{"result"}, // "ok", "failed", "skipped"
	)
)
