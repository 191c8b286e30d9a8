package cache

import "time"

// Freshness classifies a cache entry relative to its expiry windows.
type Freshness int

const (
	// Fresh means the entry is within its TTL and can be served as-is.
	Fresh Freshness = iota

	// Stale means the entry is past its TTL but within the stale-grace
	// window: it may still be served while a background refresh runs.
	Stale

	// Expired means the entry is past its hard expiry and must be treated
	// as a miss.
	Expired
)

// String returns the freshness state name for logging.
func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "expired"
	}
}

// Entry represents a cached value with its freshness metadata.
type Entry struct {
	// Namespace and Name identify the entry within its tier.
	Namespace string `json:"namespace"`
	Name      string `json:"name"`

	// Data is the serialized payload. The cache treats it as opaque bytes;
	// typed access happens at the domain adapter boundary.
	Data []byte `json:"data"`

	// CreatedAt is when the value was written (or last refreshed).
	CreatedAt time.Time `json:"created_at"`

	// LastAccessAt is when the entry was last read from L1. Maintained by
	// the entry store, not serialized to the durable tier.
	LastAccessAt time.Time `json:"-"`

	// TTL is how long the entry counts as fresh from CreatedAt.
	TTL time.Duration `json:"ttl"`

	// StaleGrace is the additional window after expiry during which the
	// entry may still be served while a refresh runs in the background.
	StaleGrace time.Duration `json:"stale_grace"`
}

// Key returns the entry's cache key.
func (e *Entry) Key() Key {
	return Key{Namespace: e.Namespace, Name: e.Name}
}

// ExpiresAt is when the entry stops being fresh.
func (e *Entry) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.TTL)
}

// HardExpiresAt is when the entry stops being servable at all.
func (e *Entry) HardExpiresAt() time.Time {
	return e.CreatedAt.Add(e.TTL + e.StaleGrace)
}

// FreshnessAt classifies the entry at the given instant.
func (e *Entry) FreshnessAt(now time.Time) Freshness {
	if now.Before(e.ExpiresAt()) {
		return Fresh
	}
	if now.Before(e.HardExpiresAt()) {
		return Stale
	}
	return Expired
}

// RemainingTTL returns the time until hard expiry at the given instant.
// Returns 0 if the entry is already hard-expired. This is the TTL hint
// passed to the durable store.
func (e *Entry) RemainingTTL(now time.Time) time.Duration {
	remaining := e.HardExpiresAt().Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Size returns the entry's payload size in bytes, used against the entry
// store's byte budget.
func (e *Entry) Size() int64 {
	return int64(len(e.Data))
}
