package cache

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/yanggf8/cct-sub009/pkg/dedupe"
)

// HitTier reports which tier served a read.
type HitTier string

const (
	// HitL1 means the in-process tier served the read.
	HitL1 HitTier = "l1"

	// HitL2 means the durable tier served the read (and the entry was
	// promoted into the in-process tier).
	HitL2 HitTier = "l2"

	// HitNone means both tiers missed.
	HitNone HitTier = "miss"
)

// Health is the facade's health check result.
type Health struct {
	L1OK     bool `json:"l1_ok"`
	L2OK     bool `json:"l2_ok"`
	Degraded bool `json:"degraded"`
}

// Stats aggregates the observability surface exposed to operators.
type Stats struct {
	Store   StoreStats   `json:"store"`
	Dedupe  dedupe.Stats `json:"dedupe"`
	Enabled bool         `json:"enabled"`
}

// Facade unifies the in-process tier (L1) and the durable tier (L2)
// behind one API. Reads check L1 first and promote L2 hits; writes go
// through to both tiers, with durable-tier failures absorbed and logged.
//
// Calling code never branches on tier availability itself: when the fast
// tier binding is absent the facade degrades to pass-through mode, where
// every read reports a miss and every write is an accepted no-op.
type Facade struct {
	store   *Store
	durable DurableTier
	deduper *dedupe.Deduper

	refreshTimeout time.Duration
	logger         zerolog.Logger
	now            func() time.Time
}

// New creates a cache facade over the given tiers. store may be nil, in
// which case the whole subsystem runs in pass-through mode; durable may
// be nil, in which case only the in-process tier is used.
func New(store *Store, durable DurableTier, deduper *dedupe.Deduper, logger zerolog.Logger) *Facade {
	if deduper == nil {
		deduper = dedupe.New(logger)
	}
	return &Facade{
		store:          store,
		durable:        durable,
		deduper:        deduper,
		refreshTimeout: dedupe.DefaultTimeout,
		logger:         logger,
		now:            time.Now,
	}
}

// enabled is the availability gate: a pure function of whether the fast
// tier binding was configured, evaluated on every call.
func (f *Facade) enabled() bool {
	return f.store != nil
}

// Get reads a value. On an L1 miss it checks L2 and promotes the result
// into L1 with its original freshness metadata. Stale-but-servable
// entries are returned; callers that need freshness classification use
// GetWithRevalidate instead.
func (f *Facade) Get(ctx context.Context, key Key) (*Entry, HitTier) {
	if !f.enabled() {
		return nil, HitNone
	}

	if entry, ok := f.store.Get(key); ok {
		CacheHits.WithLabelValues(string(HitL1)).Inc()
		return entry, HitL1
	}

	if entry := f.durableGet(ctx, key); entry != nil {
		// Promote into L1 so the next read is served locally.
		f.store.Set(entry)
		CacheHits.WithLabelValues(string(HitL2)).Inc()
		return entry, HitL2
	}

	CacheMisses.Inc()
	return nil, HitNone
}

// Set writes a value through to both tiers. A durable-tier failure is
// logged and absorbed; the write still succeeds against the in-process
// tier. In pass-through mode Set accepts and drops the value.
func (f *Facade) Set(ctx context.Context, key Key, data []byte, ttl, staleGrace time.Duration) *Entry {
	entry := &Entry{
		Namespace:  key.Namespace,
		Name:       key.Name,
		Data:       data,
		CreatedAt:  f.now(),
		TTL:        ttl,
		StaleGrace: staleGrace,
	}
	if !f.enabled() {
		return entry
	}

	f.store.Set(entry)

	if f.durable != nil {
		if err := f.durable.Set(ctx, entry); err != nil {
			f.logger.Warn().
				Err(err).
				Str("namespace", key.Namespace).
				Str("key", key.Name).
				Msg("Durable tier write failed, entry cached in-process only")
		}
	}
	return entry
}

// GetWithRevalidate reads a value under the stale-while-revalidate
// policy:
//
//   - fresh: returned immediately, no side effect
//   - stale within grace: returned immediately with stale=true, and
//     refresh runs in the background; at most one refresh per key is in
//     flight at a time, and a failed refresh leaves the stale entry
//     untouched so the next read retries
//   - expired or missing: refresh runs synchronously through the request
//     deduplicator; its error, if any, is the only error that crosses
//     the cache boundary
//
// In pass-through mode every call fetches synchronously (still
// deduplicated) and nothing is stored.
func (f *Facade) GetWithRevalidate(ctx context.Context, key Key, ttl, staleGrace time.Duration, refresh dedupe.Fetch) ([]byte, bool, error) {
	if !f.enabled() {
		data, err := f.deduper.Do(ctx, key.String(), f.refreshTimeout, refresh)
		return data, false, err
	}

	entry, _ := f.Get(ctx, key)
	if entry != nil {
		switch entry.FreshnessAt(f.now()) {
		case Fresh:
			return entry.Data, false, nil
		case Stale:
			f.revalidate(key, ttl, staleGrace, refresh)
			return entry.Data, true, nil
		}
	}

	// Miss or hard-expired: fetch synchronously, coalesced with any
	// concurrent fetch or in-flight revalidation of the same key.
	data, err := f.deduper.Do(ctx, key.String(), f.refreshTimeout, refresh)
	if err != nil {
		return nil, false, err
	}
	f.Set(ctx, key, data, ttl, staleGrace)
	return data, false, nil
}

// revalidate schedules a background refresh unless one is already in
// flight for the key. The triggering read does not wait for it.
func (f *Facade) revalidate(key Key, ttl, staleGrace time.Duration, refresh dedupe.Fetch) {
	if f.deduper.InFlight(key.String()) {
		CacheRevalidations.WithLabelValues("skipped").Inc()
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), f.refreshTimeout)
		defer cancel()

		data, err := f.deduper.Do(ctx, key.String(), f.refreshTimeout, refresh)
		if err != nil {
			// The stale entry stays in place, unextended; the next
			// stale read triggers another attempt.
			CacheRevalidations.WithLabelValues("failed").Inc()
			f.logger.Warn().
				Err(err).
				Str("namespace", key.Namespace).
				Str("key", key.Name).
				Msg("Background revalidation failed, serving stale until next read")
			return
		}

		f.Set(ctx, key, data, ttl, staleGrace)
		CacheRevalidations.WithLabelValues("ok").Inc()
		f.logger.Debug().
			Str("namespace", key.Namespace).
			Str("key", key.Name).
			Msg("Background revalidation complete")
	}()
}

// Delete removes a key from both tiers.
func (f *Facade) Delete(ctx context.Context, key Key) {
	if !f.enabled() {
		return
	}
	f.store.Delete(key)
	if f.durable != nil {
		if err := f.durable.Delete(ctx, key); err != nil {
			f.logger.Warn().
				Err(err).
				Str("namespace", key.Namespace).
				Str("key", key.Name).
				Msg("Durable tier delete failed")
		}
	}
}

// Clear removes every entry in the namespace from both tiers (every
// entry in the cache when namespace is empty). Returns the number of
// entries removed across tiers.
func (f *Facade) Clear(ctx context.Context, namespace string) int {
	if !f.enabled() {
		return 0
	}
	count := f.store.Clear(namespace)
	if f.durable != nil {
		removed, err := f.durable.Clear(ctx, namespace)
		if err != nil {
			f.logger.Warn().
				Err(err).
				Str("namespace", namespace).
				Msg("Durable tier clear failed")
		}
		count += removed
	}
	return count
}

// HealthCheck reports per-tier availability. Degraded means at least one
// tier is unavailable; the facade still operates correctly in that state.
func (f *Facade) HealthCheck(ctx context.Context) Health {
	h := Health{L1OK: f.enabled()}
	if f.durable != nil {
		h.L2OK = f.durable.Ping(ctx) == nil
	}
	h.Degraded = !h.L1OK || !h.L2OK
	return h
}

// Stats returns the operator-facing counters: tier occupancy versus
// capacity, hit/miss/eviction counts, and the dedup coalescing rate.
func (f *Facade) Stats() Stats {
	s := Stats{
		Dedupe:  f.deduper.Snapshot(),
		Enabled: f.enabled(),
	}
	if f.enabled() {
		s.Store = f.store.Stats()
	}
	return s
}

// durableGet reads from the durable tier, absorbing every failure into
// miss semantics. Only unexpected errors are logged; plain misses are
// routine.
func (f *Facade) durableGet(ctx context.Context, key Key) *Entry {
	if f.durable == nil {
		return nil
	}
	entry, err := f.durable.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			f.logger.Warn().
				Err(err).
				Str("namespace", key.Namespace).
				Str("key", key.Name).
				Msg("Durable tier read failed, treating as miss")
		}
		return nil
	}
	return entry
}
