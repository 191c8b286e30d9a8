package cache

import "strings"

// keyPrefix namespaces every cache key in the durable store so that
// unrelated applications sharing the same Redis instance cannot collide.
const keyPrefix = "cct"

// Key identifies a cached value. Keys are unique only within a namespace;
// the namespace partitions unrelated data kinds (sector snapshots, news
// sentiment, backtest artifacts) so their keys can never collide.
type Key struct {
	// Namespace is the partition identifier (e.g. "sector", "news").
	Namespace string

	// Name is the caller-supplied key, opaque to the cache.
	Name string
}

// NewKey creates a Key for the given namespace and name.
func NewKey(namespace, name string) Key {
	return Key{Namespace: namespace, Name: name}
}

// String generates the canonical key string used by both tiers and the
// request deduplicator. Format: cct:namespace:name
//
// Example:
//   cct:sector:SPY_snapshot
//
// Every read, write, and metrics path derives its key through this one
// function, so the tiers and the stats they report always agree.
func (k Key) String() string {
	return strings.Join([]string{keyPrefix, k.Namespace, k.Name}, ":")
}

// NamespacePattern returns the Redis key pattern matching every key in the
// given namespace, for bulk invalidation.
func NamespacePattern(namespace string) string {
	return keyPrefix + ":" + namespace + ":*"
}
