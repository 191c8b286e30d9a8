package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in a tier
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// DurableTier is the slower, externally persistent tier behind the facade.
// Implementations tolerate eventual consistency: a write may not be
// immediately visible to a subsequent read.
type DurableTier interface {
	Get(ctx context.Context, key Key) (*Entry, error)
	Set(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, key Key) error
	Clear(ctx context.Context, namespace string) (int, error)
	Ping(ctx context.Context) error
}

// RedisStore is the durable cache tier (L2) backed by Redis.
type RedisStore struct {
	redis *redis.Client
	now   func() time.Time
}

// NewRedisStore creates a durable tier client over the given Redis client.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis: redisClient,
		now:   time.Now,
	}
}

// Get retrieves an entry by key.
// Returns ErrCacheMiss if the key doesn't exist or the entry has passed
// its hard expiry. Expiry is validated against the entry's own metadata,
// so correctness does not depend on Redis honoring the TTL hint.
func (r *RedisStore) Get(ctx context.Context, key Key) (*Entry, error) {
	data, err := r.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.FreshnessAt(r.now()) == Expired {
		// Lazily remove the expired entry
		_ = r.Delete(ctx, key)
		return nil, ErrCacheMiss
	}

	return &entry, nil
}

// Set stores an entry with a Redis TTL hint covering the full stale-grace
// window, so the store reclaims hard-expired entries on its own.
func (r *RedisStore) Set(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.RemainingTTL(r.now())
	if ttl <= 0 {
		// Already hard-expired, don't store
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := r.redis.Set(ctx, entry.Key().String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes an entry.
func (r *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := r.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Clear removes every entry in the given namespace, or every entry under
// the cache's key prefix when namespace is empty. Returns the number of
// keys removed. Uses SCAN rather than KEYS so a large namespace does not
// block the store.
func (r *RedisStore) Clear(ctx context.Context, namespace string) (int, error) {
	pattern := keyPrefix + ":*"
	if namespace != "" {
		pattern = NamespacePattern(namespace)
	}

	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := r.redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			CacheErrors.WithLabelValues("clear").Inc()
			return count, fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			removed, err := r.redis.Del(ctx, keys...).Result()
			if err != nil {
				CacheErrors.WithLabelValues("clear").Inc()
				return count, fmt.Errorf("redis del: %w", err)
			}
			count += int(removed)
		}
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}

// Ping checks the Redis connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.redis.Ping(ctx).Err()
}
