package integration

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/yanggf8/cct-sub009/internal/testutil"
	"github.com/yanggf8/cct-sub009/pkg/cache"
	"github.com/yanggf8/cct-sub009/pkg/dedupe"
	"github.com/yanggf8/cct-sub009/pkg/domain"
	"github.com/yanggf8/cct-sub009/pkg/upstream"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// newFacade builds a two-tier facade over the given Redis client.
func newFacade(t *testing.T, redisClient *redis.Client) *cache.Facade {
	t.Helper()
	store := cache.NewStore(cache.DefaultStoreConfig(), zerolog.Nop())
	t.Cleanup(store.Close)
	return cache.New(store, cache.NewRedisStore(redisClient), dedupe.New(zerolog.Nop()), zerolog.Nop())
}

// TestWriteThroughSurvivesRestart verifies the durable tier: a value
// written through one facade is visible to a second facade with an empty
// in-process tier, and gets promoted into it on first read.
func TestWriteThroughSurvivesRestart(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	key := cache.NewKey("sector", "SPY_snapshot")

	first := newFacade(t, redisClient)
	first.Set(ctx, key, []byte("snapshot v1"), time.Hour, 10*time.Minute)

	// A fresh facade simulates a process restart: its L1 is empty, so the
	// read must come from Redis.
	second := newFacade(t, redisClient)
	entry, tier := second.Get(ctx, key)
	if tier != cache.HitL2 {
		t.Fatalf("tier = %s, want l2", tier)
	}
	if string(entry.Data) != "snapshot v1" {
		t.Errorf("data = %s", entry.Data)
	}

	// Promotion: the next read is local.
	if _, tier = second.Get(ctx, key); tier != cache.HitL1 {
		t.Errorf("tier after promotion = %s, want l1", tier)
	}
}

// TestEndToEndFetchFlow runs the full path: adapter read → dedupe →
// upstream HTTP fetch → write-through to both tiers → cached reads.
func TestEndToEndFetchFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetResponse("/v1/snapshot/SPY", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"symbol":"SPY","score":0.82}`,
	})

	facade := newFacade(t, redisClient)
	sector := domain.NewSectorCache(facade)
	fetcher := upstream.New(upstream.DefaultConfig("cct-integration/1.0"))
	fetch := fetcher.FetchFunc("marketdata", mock.URL()+"/v1/snapshot/SPY")

	ctx := context.Background()
	data, stale, err := sector.Snapshot(ctx, "SPY", fetch)
	if err != nil || stale {
		t.Fatalf("Snapshot: stale=%v err=%v", stale, err)
	}
	if string(data) != `{"symbol":"SPY","score":0.82}` {
		t.Errorf("data = %s", data)
	}

	// Second read comes entirely from cache.
	if _, _, err := sector.Snapshot(ctx, "SPY", fetch); err != nil {
		t.Fatalf("cached Snapshot failed: %v", err)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("upstream requests = %d, want 1", mock.GetRequestCount())
	}

	// And the payload made it to Redis for other instances.
	other := newFacade(t, redisClient)
	entry, tier := other.Get(ctx, cache.NewKey("sector", "SPY_snapshot"))
	if tier != cache.HitL2 || string(entry.Data) != string(data) {
		t.Errorf("second instance read: tier=%s data=%s", tier, entry.Data)
	}
}

// TestConcurrentFetchesCoalesce verifies that many concurrent misses for
// the same key reach upstream exactly once.
func TestConcurrentFetchesCoalesce(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetResponse("/v1/news/SPY", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       "sentiment",
		Delay:      100 * time.Millisecond,
	})

	facade := newFacade(t, redisClient)
	news := domain.NewSentimentCache(facade)
	fetcher := upstream.New(upstream.DefaultConfig("cct-integration/1.0"))
	fetch := fetcher.FetchFunc("newsapi", mock.URL()+"/v1/news/SPY")

	const callers = 25
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			_, _, err := news.Sentiment(context.Background(), "SPY", fetch)
			errs <- err
		}()
	}
	for i := 0; i < callers; i++ {
		if err := <-errs; err != nil {
			t.Errorf("caller %d: %v", i, err)
		}
	}

	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("upstream requests = %d, want 1", got)
	}
}

// TestNamespaceClearAcrossTiers verifies that clearing a namespace
// removes its entries from Redis too, without touching other namespaces.
func TestNamespaceClearAcrossTiers(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	facade := newFacade(t, redisClient)
	for i := 0; i < 5; i++ {
		facade.Set(ctx, cache.NewKey("backtest", fmt.Sprintf("run-%d", i)), []byte("artifact"), time.Hour, 0)
	}
	facade.Set(ctx, cache.NewKey("sector", "SPY"), []byte("snapshot"), time.Hour, 0)

	if removed := facade.Clear(ctx, "backtest"); removed != 10 {
		// 5 entries in each tier.
		t.Errorf("Clear(backtest) = %d, want 10", removed)
	}

	if _, tier := facade.Get(ctx, cache.NewKey("backtest", "run-0")); tier != cache.HitNone {
		t.Error("backtest entry survived Clear")
	}
	if _, tier := facade.Get(ctx, cache.NewKey("sector", "SPY")); tier == cache.HitNone {
		t.Error("sector entry removed by backtest Clear")
	}

	// Sanity check against Redis directly.
	keys, err := redisClient.Keys(ctx, "cct:backtest:*").Result()
	if err != nil {
		t.Fatalf("KEYS failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("%d backtest keys left in Redis", len(keys))
	}
}

// TestHealthCheckBothTiers verifies the health surface against a live
// durable tier.
func TestHealthCheckBothTiers(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	facade := newFacade(t, redisClient)
	health := facade.HealthCheck(context.Background())
	if !health.L1OK || !health.L2OK || health.Degraded {
		t.Errorf("health = %+v, want both tiers healthy", health)
	}
}
