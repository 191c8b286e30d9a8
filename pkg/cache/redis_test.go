package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a test Redis client. Unit tests use a local
// Redis and skip if it is not reachable; integration tests use
// testcontainers-go with a real Redis instance.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewRedisStore_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewRedisStore should panic with nil redis client")
		}
	}()
	NewRedisStore(nil)
}

func TestRedisStore_SetAndGet(t *testing.T) {
	store := NewRedisStore(setupTestRedis(t))
	ctx := context.Background()

	entry := storeEntry("sector", "SPY_snapshot", `{"symbol": "SPY"}`, time.Hour, 10*time.Minute)
	if err := store.Set(ctx, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := store.Get(ctx, NewKey("sector", "SPY_snapshot"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Data) != string(entry.Data) {
		t.Errorf("Data = %s, want %s", got.Data, entry.Data)
	}
	if got.TTL != entry.TTL || got.StaleGrace != entry.StaleGrace {
		t.Errorf("freshness metadata not preserved: ttl=%v grace=%v", got.TTL, got.StaleGrace)
	}
}

func TestRedisStore_Get_CacheMiss(t *testing.T) {
	store := NewRedisStore(setupTestRedis(t))

	_, err := store.Get(context.Background(), NewKey("sector", "nonexistent"))
	if err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestRedisStore_HardExpiredIsMiss(t *testing.T) {
	client := setupTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	// Write an entry, then move the store's clock past its hard expiry.
	// The read-side validation must report a miss even though Redis
	// still holds the key.
	entry := storeEntry("news", "AAPL", "scores", time.Minute, time.Minute)
	if err := store.Set(ctx, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	store.now = func() time.Time { return time.Now().Add(3 * time.Minute) }

	if _, err := store.Get(ctx, NewKey("news", "AAPL")); err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss past hard expiry, got %v", err)
	}
}

func TestRedisStore_Set_AlreadyExpired(t *testing.T) {
	client := setupTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	entry := storeEntry("news", "AAPL", "scores", time.Minute, 0)
	entry.CreatedAt = time.Now().Add(-2 * time.Minute)

	// Hard-expired entries are silently not stored.
	if err := store.Set(ctx, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if n, _ := client.Exists(ctx, entry.Key().String()).Result(); n != 0 {
		t.Error("hard-expired entry was written to Redis")
	}
}

func TestRedisStore_NativeTTLHint(t *testing.T) {
	client := setupTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	entry := storeEntry("sector", "SPY", "v", time.Hour, 10*time.Minute)
	if err := store.Set(ctx, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	ttl, err := client.TTL(ctx, entry.Key().String()).Result()
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	// The hint covers the full stale-grace window.
	if ttl <= time.Hour || ttl > 70*time.Minute {
		t.Errorf("Redis TTL = %v, want within (1h, 70m]", ttl)
	}
}

func TestRedisStore_DeleteAndClear(t *testing.T) {
	store := NewRedisStore(setupTestRedis(t))
	ctx := context.Background()

	for _, name := range []string{"SPY", "QQQ"} {
		if err := store.Set(ctx, storeEntry("sector", name, "v", time.Hour, 0)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if err := store.Set(ctx, storeEntry("news", "AAPL", "v", time.Hour, 0)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := store.Delete(ctx, NewKey("sector", "SPY")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, NewKey("sector", "SPY")); err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss after delete, got %v", err)
	}

	count, err := store.Clear(ctx, "sector")
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Clear(sector) = %d, want 1", count)
	}
	if _, err := store.Get(ctx, NewKey("news", "AAPL")); err != nil {
		t.Errorf("Clear(sector) removed another namespace's entry: %v", err)
	}
}

func TestRedisStore_ClearAll(t *testing.T) {
	store := NewRedisStore(setupTestRedis(t))
	ctx := context.Background()

	if err := store.Set(ctx, storeEntry("sector", "SPY", "v", time.Hour, 0)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Set(ctx, storeEntry("news", "AAPL", "v", time.Hour, 0)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	count, err := store.Clear(ctx, "")
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Clear() = %d, want 2", count)
	}
}

func TestRedisStore_Ping(t *testing.T) {
	store := NewRedisStore(setupTestRedis(t))
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
