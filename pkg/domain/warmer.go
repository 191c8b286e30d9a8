package domain

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yanggf8/cct-sub009/pkg/dedupe"
)

// WarmerConfig holds cache warm-up configuration
type WarmerConfig struct {
	// MaxConcurrency is the maximum number of parallel fetches
	MaxConcurrency int
	// Timeout per key fetch
	Timeout time.Duration
}

// DefaultWarmerConfig returns safe warm-up defaults
func DefaultWarmerConfig() WarmerConfig {
	return WarmerConfig{
		MaxConcurrency: 10,
		Timeout:        15 * time.Second,
	}
}

// WarmItem is one key to preload together with its upstream fetch
type WarmItem struct {
	Name  string
	Fetch dedupe.Fetch
}

// WarmResult summarizes a warm-up run
type WarmResult struct {
	Warmed int
	Failed int
}

// Warmer preloads a set of keys through an adapter using a worker pool,
// so scheduled jobs can populate the cache before request traffic needs
// it. Fetches go through the regular stale-while-revalidate path, so
// already-fresh keys cost nothing and concurrent request traffic for the
// same keys is coalesced.
type Warmer struct {
	adapter *Adapter
	config  WarmerConfig
}

// NewWarmer creates a cache warmer over the given adapter
func NewWarmer(adapter *Adapter, config WarmerConfig) *Warmer {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 10
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	return &Warmer{adapter: adapter, config: config}
}

// Warm preloads all items in parallel. Individual fetch failures are
// logged and counted, never fatal to the run; warming stops early when
// the context is cancelled.
func (w *Warmer) Warm(ctx context.Context, items []WarmItem) WarmResult {
	start := time.Now()

	log.Info().
		Str("namespace", w.adapter.Namespace()).
		Int("keys", len(items)).
		Msg("Starting cache warm-up")

	queue := make(chan WarmItem, len(items))
	for _, item := range items {
		queue <- item
	}
	close(queue)

	var (
		mu     sync.Mutex
		result WarmResult
		wg     sync.WaitGroup
	)
	for i := 0; i < w.config.MaxConcurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for item := range queue {
				select {
				case <-ctx.Done():
					log.Debug().
						Int("worker_id", workerID).
						Msg("Warm-up worker stopping (context cancelled)")
					return
				default:
				}

				itemCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
				_, _, err := w.adapter.GetOrFetch(itemCtx, item.Name, item.Fetch)
				cancel()

				mu.Lock()
				if err != nil {
					result.Failed++
				} else {
					result.Warmed++
				}
				mu.Unlock()

				if err != nil {
					log.Warn().
						Err(err).
						Str("namespace", w.adapter.Namespace()).
						Str("key", item.Name).
						Msg("Warm-up fetch failed")
				}
			}
		}(i)
	}
	wg.Wait()

	log.Info().
		Str("namespace", w.adapter.Namespace()).
		Int("warmed", result.Warmed).
		Int("failed", result.Failed).
		Dur("duration", time.Since(start)).
		Msg("Cache warm-up complete")

	return result
}
