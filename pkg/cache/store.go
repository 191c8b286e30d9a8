package cache

import (
	"container/list"
	"time"

	"github.com/rs/zerolog"
)

// StoreConfig bounds the in-process tier.
type StoreConfig struct {
	// MaxEntries is the maximum number of entries (0 = unlimited).
	MaxEntries int

	// MaxBytes is the maximum total payload size (0 = unlimited).
	MaxBytes int64
}

// DefaultStoreConfig returns the default in-process tier bounds.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		MaxEntries: 10000,
		MaxBytes:   64 << 20, // 64 MiB
	}
}

// StoreStats is a point-in-time snapshot of the entry store.
type StoreStats struct {
	Entries    int   `json:"entries"`
	SizeBytes  int64 `json:"size_bytes"`
	MaxEntries int   `json:"max_entries"`
	MaxBytes   int64 `json:"max_bytes"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Evictions  int64 `json:"evictions"`
	Expired    int64 `json:"expired"`
}

// Store is the in-process cache tier (L1): a size-bounded, TTL-aware map
// with LRU eviction. All state is owned by a single goroutine; public
// methods post operations to it and wait for the result, so concurrent
// callers are serialized by the operation queue and the state needs no
// locking. The store lives for the lifetime of the process; durability
// across restarts is the durable tier's job.
type Store struct {
	ops  chan func()
	stop chan struct{}

	// Owner-goroutine state. Touched only from run().
	cfg      StoreConfig
	elements map[string]*list.Element
	lru      *list.List // front = most recently accessed
	bytes    int64
	hits     int64
	misses   int64
	evicted  int64
	expired  int64

	logger zerolog.Logger
	now    func() time.Time
}

// NewStore creates an entry store with the given bounds and starts its
// owner goroutine. Callers must Close the store when done with it.
func NewStore(cfg StoreConfig, logger zerolog.Logger) *Store {
	s := &Store{
		ops:      make(chan func()),
		stop:     make(chan struct{}),
		cfg:      cfg,
		elements: make(map[string]*list.Element),
		lru:      list.New(),
		logger:   logger,
		now:      time.Now,
	}
	go s.run()
	return s
}

// run is the owner goroutine. It executes one operation at a time until
// the store is closed.
func (s *Store) run() {
	for {
		select {
		case op := <-s.ops:
			op()
		case <-s.stop:
			return
		}
	}
}

// Close stops the owner goroutine. Operations issued after Close are
// no-ops reporting absence.
func (s *Store) Close() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

// do posts an operation to the owner goroutine and waits for it.
// Returns false if the store is closed.
func (s *Store) do(fn func()) bool {
	done := make(chan struct{})
	select {
	case s.ops <- func() { fn(); close(done) }:
	case <-s.stop:
		return false
	}
	select {
	case <-done:
		return true
	case <-s.stop:
		return false
	}
}

// Get retrieves an entry if it exists and has not passed its hard expiry.
// A hit refreshes the entry's LRU position and last-access time; stale
// entries within their grace window are still returned and classified by
// the caller. Hard-expired entries are removed lazily here.
func (s *Store) Get(key Key) (*Entry, bool) {
	var (
		entry *Entry
		ok    bool
	)
	s.do(func() {
		el, found := s.elements[key.String()]
		if !found {
			s.misses++
			return
		}
		e := el.Value.(*Entry)
		if e.FreshnessAt(s.now()) == Expired {
			s.removeElement(key.String(), el)
			s.expired++
			s.misses++
			return
		}
		e.LastAccessAt = s.now()
		s.lru.MoveToFront(el)
		s.hits++
		entry, ok = e, true
	})
	return entry, ok
}

// Set inserts or overwrites an entry, then evicts least-recently-accessed
// entries until the store is back within its bounds.
func (s *Store) Set(entry *Entry) {
	s.do(func() {
		k := entry.Key().String()
		if el, found := s.elements[k]; found {
			s.bytes -= el.Value.(*Entry).Size()
			el.Value = entry
			s.lru.MoveToFront(el)
		} else {
			s.elements[k] = s.lru.PushFront(entry)
		}
		s.bytes += entry.Size()
		s.evictOverCapacity()
		s.publishGauges()
	})
}

// Delete removes an entry. Returns true if it was present.
func (s *Store) Delete(key Key) bool {
	var removed bool
	s.do(func() {
		if el, found := s.elements[key.String()]; found {
			s.removeElement(key.String(), el)
			removed = true
		}
	})
	return removed
}

// Clear removes every entry in the given namespace, or every entry in the
// store when namespace is empty. Returns the number removed.
func (s *Store) Clear(namespace string) int {
	var count int
	s.do(func() {
		var next *list.Element
		for el := s.lru.Front(); el != nil; el = next {
			next = el.Next()
			e := el.Value.(*Entry)
			if namespace != "" && e.Namespace != namespace {
				continue
			}
			s.removeElement(e.Key().String(), el)
			count++
		}
	})
	return count
}

// Stats returns a snapshot of the store's counters and occupancy.
func (s *Store) Stats() StoreStats {
	var stats StoreStats
	s.do(func() {
		stats = StoreStats{
			Entries:    s.lru.Len(),
			SizeBytes:  s.bytes,
			MaxEntries: s.cfg.MaxEntries,
			MaxBytes:   s.cfg.MaxBytes,
			Hits:       s.hits,
			Misses:     s.misses,
			Evictions:  s.evicted,
			Expired:    s.expired,
		}
	})
	return stats
}

// evictOverCapacity removes entries from the LRU tail until both bounds
// hold. Runs on the owner goroutine.
func (s *Store) evictOverCapacity() {
	for s.overCapacity() {
		el := s.lru.Back()
		if el == nil {
			return
		}
		victim := el.Value.(*Entry)
		s.removeElement(victim.Key().String(), el)
		s.evicted++
		CacheEvictions.Inc()
		s.logger.Debug().
			Str("namespace", victim.Namespace).
			Str("key", victim.Name).
			Int64("size", victim.Size()).
			Msg("Evicted least-recently-accessed entry")
	}
}

func (s *Store) overCapacity() bool {
	if s.cfg.MaxEntries > 0 && s.lru.Len() > s.cfg.MaxEntries {
		return true
	}
	if s.cfg.MaxBytes > 0 && s.bytes > s.cfg.MaxBytes {
		return true
	}
	return false
}

// removeElement drops an entry from the map, the LRU list, and the byte
// total. Runs on the owner goroutine.
func (s *Store) removeElement(k string, el *list.Element) {
	s.bytes -= el.Value.(*Entry).Size()
	s.lru.Remove(el)
	delete(s.elements, k)
	s.publishGauges()
}

func (s *Store) publishGauges() {
	CacheEntries.Set(float64(s.lru.Len()))
	CacheSizeBytes.Set(float64(s.bytes))
}
