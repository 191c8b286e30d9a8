// Package domain provides thin namespacing adapters over the cache
// facade, one per cached data kind. Adapters carry no cache logic: they
// fix a namespace so unrelated data kinds can never collide on a key,
// and centralize the freshness policy appropriate to each kind's
// volatility.
package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yanggf8/cct-sub009/pkg/cache"
	"github.com/yanggf8/cct-sub009/pkg/dedupe"
)

// Freshness policy per data kind. Short windows for near-real-time data,
// long windows for slowly-changing artifacts.
const (
	sectorTTL   = time.Hour
	sectorGrace = 10 * time.Minute

	driversTTL   = 15 * time.Minute
	driversGrace = 5 * time.Minute

	sentimentTTL   = 5 * time.Minute
	sentimentGrace = time.Minute

	backtestTTL   = 24 * time.Hour
	backtestGrace = 6 * time.Hour
)

// Adapter binds a namespace and default freshness policy to the shared
// facade.
type Adapter struct {
	cache      *cache.Facade
	namespace  string
	ttl        time.Duration
	staleGrace time.Duration
}

func newAdapter(c *cache.Facade, namespace string, ttl, staleGrace time.Duration) *Adapter {
	return &Adapter{
		cache:      c,
		namespace:  namespace,
		ttl:        ttl,
		staleGrace: staleGrace,
	}
}

// Namespace returns the adapter's key partition.
func (a *Adapter) Namespace() string {
	return a.namespace
}

// Get reads a cached payload.
func (a *Adapter) Get(ctx context.Context, name string) ([]byte, bool) {
	entry, tier := a.cache.Get(ctx, cache.NewKey(a.namespace, name))
	if tier == cache.HitNone {
		return nil, false
	}
	return entry.Data, true
}

// Set writes a payload through both tiers under the adapter's policy.
func (a *Adapter) Set(ctx context.Context, name string, data []byte) {
	a.cache.Set(ctx, cache.NewKey(a.namespace, name), data, a.ttl, a.staleGrace)
}

// GetOrFetch reads under the stale-while-revalidate policy, fetching
// upstream on a miss. stale is true when an expired-but-servable value
// was returned while a background refresh runs.
func (a *Adapter) GetOrFetch(ctx context.Context, name string, fetch dedupe.Fetch) ([]byte, bool, error) {
	return a.cache.GetWithRevalidate(ctx, cache.NewKey(a.namespace, name), a.ttl, a.staleGrace, fetch)
}

// Delete invalidates one key.
func (a *Adapter) Delete(ctx context.Context, name string) {
	a.cache.Delete(ctx, cache.NewKey(a.namespace, name))
}

// Clear invalidates the adapter's whole namespace.
func (a *Adapter) Clear(ctx context.Context) int {
	return a.cache.Clear(ctx, a.namespace)
}

// GetJSON reads a cached payload and decodes it into T.
func GetJSON[T any](ctx context.Context, a *Adapter, name string) (T, bool, error) {
	var v T
	data, ok := a.Get(ctx, name)
	if !ok {
		return v, false, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("decode %s/%s: %w", a.namespace, name, err)
	}
	return v, true, nil
}

// SetJSON encodes v and writes it through the adapter.
func SetJSON[T any](ctx context.Context, a *Adapter, name string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", a.namespace, name, err)
	}
	a.Set(ctx, name, data)
	return nil
}

// FetchJSON is GetOrFetch with typed decode: fetch produces the typed
// value, the cache stores its JSON form.
func FetchJSON[T any](ctx context.Context, a *Adapter, name string, fetch func() (T, error)) (T, bool, error) {
	var v T
	data, stale, err := a.GetOrFetch(ctx, name, func() ([]byte, error) {
		fetched, err := fetch()
		if err != nil {
			return nil, err
		}
		return json.Marshal(fetched)
	})
	if err != nil {
		return v, stale, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, stale, fmt.Errorf("decode %s/%s: %w", a.namespace, name, err)
	}
	return v, stale, nil
}

// SectorCache caches per-symbol sector snapshots.
type SectorCache struct {
	*Adapter
}

// NewSectorCache creates the sector snapshot adapter (namespace
// "sector", 1h TTL, 10m grace).
func NewSectorCache(c *cache.Facade) *SectorCache {
	return &SectorCache{newAdapter(c, "sector", sectorTTL, sectorGrace)}
}

// Snapshot reads a sector snapshot, fetching upstream when needed.
func (s *SectorCache) Snapshot(ctx context.Context, symbol string, fetch dedupe.Fetch) ([]byte, bool, error) {
	return s.GetOrFetch(ctx, symbol+"_snapshot", fetch)
}

// SetSnapshot stores a sector snapshot.
func (s *SectorCache) SetSnapshot(ctx context.Context, symbol string, data []byte) {
	s.Set(ctx, symbol+"_snapshot", data)
}

// MarketDriversCache caches market-driver series.
type MarketDriversCache struct {
	*Adapter
}

// NewMarketDriversCache creates the market drivers adapter (namespace
// "market-drivers", 15m TTL, 5m grace).
func NewMarketDriversCache(c *cache.Facade) *MarketDriversCache {
	return &MarketDriversCache{newAdapter(c, "market-drivers", driversTTL, driversGrace)}
}

// Series reads a driver series by name, fetching upstream when needed.
func (m *MarketDriversCache) Series(ctx context.Context, name string, fetch dedupe.Fetch) ([]byte, bool, error) {
	return m.GetOrFetch(ctx, name, fetch)
}

// SentimentCache caches per-symbol news sentiment scores.
type SentimentCache struct {
	*Adapter
}

// NewSentimentCache creates the news sentiment adapter (namespace
// "news", 5m TTL, 1m grace).
func NewSentimentCache(c *cache.Facade) *SentimentCache {
	return &SentimentCache{newAdapter(c, "news", sentimentTTL, sentimentGrace)}
}

// Sentiment reads sentiment for a symbol, fetching upstream when needed.
func (s *SentimentCache) Sentiment(ctx context.Context, symbol string, fetch dedupe.Fetch) ([]byte, bool, error) {
	return s.GetOrFetch(ctx, symbol, fetch)
}

// BacktestCache caches backtest result artifacts.
type BacktestCache struct {
	*Adapter
}

// NewBacktestCache creates the backtest artifact adapter (namespace
// "backtest", 24h TTL, 6h grace).
func NewBacktestCache(c *cache.Facade) *BacktestCache {
	return &BacktestCache{newAdapter(c, "backtest", backtestTTL, backtestGrace)}
}

// Result reads a backtest artifact by run ID, fetching (recomputing)
// when needed.
func (b *BacktestCache) Result(ctx context.Context, runID string, fetch dedupe.Fetch) ([]byte, bool, error) {
	return b.GetOrFetch(ctx, runID, fetch)
}
