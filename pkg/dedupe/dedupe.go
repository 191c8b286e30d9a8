// Package dedupe coalesces concurrent identical upstream fetches so that
// N callers requesting the same key within the in-flight window produce
// exactly one upstream invocation, with the single outcome shared by all.
package dedupe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Prometheus metrics for request deduplication.
var (
	dedupeRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cct_dedupe_requests_total",
		Help: "Total number of deduplicated fetch requests",
	})

	dedupeCoalescedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cct_dedupe_coalesced_total",
		Help: "Total number of requests served by joining an in-flight fetch",
	})

	dedupeAbandonedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cct_dedupe_abandoned_total",
		Help: "Total number of in-flight fetches abandoned past their timeout",
	})
)

// DefaultTimeout is the in-flight age after which a pending fetch is
// considered abandoned and a fresh one may start.
const DefaultTimeout = 30 * time.Second

// Fetch is a caller-supplied upstream operation. The deduplicator has no
// knowledge of HTTP, databases, or providers beyond this signature.
type Fetch func() ([]byte, error)

// pending records one in-flight fetch for abandonment detection. The
// generation guards against a completion callback from an abandoned
// flight removing the entry of the flight that replaced it.
type pending struct {
	startedAt time.Time
	timeout   time.Duration
	gen       uint64
}

// Stats is a point-in-time snapshot of the deduplicator's counters.
type Stats struct {
	Requests  int64 `json:"requests"`
	Coalesced int64 `json:"coalesced"`
	Abandoned int64 `json:"abandoned"`

	// CoalescedRate is the fraction of requests served by joining an
	// in-flight fetch instead of starting one.
	CoalescedRate float64 `json:"coalesced_rate"`
}

// Deduper coalesces concurrent fetches per key. The single-invocation
// guarantee comes from singleflight; the pending table adds in-flight
// age tracking so a hung fetch does not block the key forever.
type Deduper struct {
	sf singleflight.Group

	mu        sync.Mutex
	pending   map[string]pending
	gen       uint64
	requests  int64
	coalesced int64
	abandoned int64

	logger zerolog.Logger
	now    func() time.Time
}

// New creates a request deduplicator.
func New(logger zerolog.Logger) *Deduper {
	return &Deduper{
		pending: make(map[string]pending),
		logger:  logger,
		now:     time.Now,
	}
}

// Do executes fn for the given key, coalescing with any fetch already in
// flight for that key. All coalesced callers observe the same outcome,
// success or error; errors are never retained once the flight completes,
// so a failed fetch does not poison later independent attempts.
//
// timeout bounds the in-flight entry's age: a pending fetch older than
// timeout is treated as abandoned and a fresh fn invocation starts. A
// non-positive timeout uses DefaultTimeout.
//
// ctx bounds only this caller's wait. Cancellation stops the caller from
// waiting but never cancels the shared fetch, since other waiters may
// still need its result.
func (d *Deduper) Do(ctx context.Context, key string, timeout time.Duration, fn Fetch) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	d.mu.Lock()
	d.requests++
	dedupeRequestsTotal.Inc()
	if p, ok := d.pending[key]; ok {
		if d.now().Sub(p.startedAt) > p.timeout {
			// Abandoned flight: forget it so the next Do starts fresh.
			d.sf.Forget(key)
			delete(d.pending, key)
			d.abandoned++
			dedupeAbandonedTotal.Inc()
			d.logger.Warn().
				Str("key", key).
				Dur("age", d.now().Sub(p.startedAt)).
				Msg("Abandoning timed-out in-flight fetch")
		} else {
			d.coalesced++
			dedupeCoalescedTotal.Inc()
		}
	}
	if _, ok := d.pending[key]; !ok {
		d.gen++
		d.pending[key] = pending{startedAt: d.now(), timeout: timeout, gen: d.gen}
	}
	gen := d.pending[key].gen
	d.mu.Unlock()

	ch := d.sf.DoChan(key, func() (interface{}, error) {
		defer func() {
			d.mu.Lock()
			if p, ok := d.pending[key]; ok && p.gen == gen {
				delete(d.pending, key)
			}
			d.mu.Unlock()
		}()
		return fn()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		data, ok := res.Val.([]byte)
		if !ok && res.Val != nil {
			return nil, fmt.Errorf("unexpected fetch result type %T", res.Val)
		}
		return data, nil
	case <-ctx.Done():
		// This caller stops waiting; the flight continues for the others.
		d.logger.Debug().
			Str("key", key).
			Msg("Caller stopped waiting for in-flight fetch")
		return nil, fmt.Errorf("await fetch %s: %w", key, ctx.Err())
	}
}

// Snapshot returns the deduplicator's counters, including the fraction
// of calls served by coalescing.
func (d *Deduper) Snapshot() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Stats{
		Requests:  d.requests,
		Coalesced: d.coalesced,
		Abandoned: d.abandoned,
	}
	if s.Requests > 0 {
		s.CoalescedRate = float64(s.Coalesced) / float64(s.Requests)
	}
	return s
}

// InFlight reports whether a live (non-abandoned) fetch is currently
// pending for the key. Used to avoid scheduling a second background
// revalidation while one is already running.
func (d *Deduper) InFlight(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pending[key]
	if !ok {
		return false
	}
	return d.now().Sub(p.startedAt) <= p.timeout
}
