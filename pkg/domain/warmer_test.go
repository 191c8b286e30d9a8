package domain

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
)

func TestWarmer_WarmsAllItems(t *testing.T) {
	facade := newTestFacade(t)
	sector := NewSectorCache(facade)
	warmer := NewWarmer(sector.Adapter, WarmerConfig{MaxConcurrency: 4})

	var fetches int32
	items := make([]WarmItem, 0, 20)
	for i := 0; i < 20; i++ {
		name := fmt.Sprintf("SYM%d", i)
		items = append(items, WarmItem{
			Name: name,
			Fetch: func() ([]byte, error) {
				atomic.AddInt32(&fetches, 1)
				return []byte(name), nil
			},
		})
	}

	result := warmer.Warm(context.Background(), items)
	if result.Warmed != 20 || result.Failed != 0 {
		t.Fatalf("Warm = %+v, want 20 warmed, 0 failed", result)
	}
	if got := atomic.LoadInt32(&fetches); got != 20 {
		t.Errorf("fetches = %d, want 20", got)
	}

	// All keys readable afterwards.
	for i := 0; i < 20; i++ {
		name := fmt.Sprintf("SYM%d", i)
		if _, ok := sector.Get(context.Background(), name); !ok {
			t.Errorf("key %s not cached after warm-up", name)
		}
	}
}

func TestWarmer_CountsFailures(t *testing.T) {
	facade := newTestFacade(t)
	news := NewSentimentCache(facade)
	warmer := NewWarmer(news.Adapter, DefaultWarmerConfig())

	items := []WarmItem{
		{Name: "good", Fetch: func() ([]byte, error) { return []byte("x"), nil }},
		{Name: "bad", Fetch: func() ([]byte, error) { return nil, errors.New("upstream down") }},
	}

	result := warmer.Warm(context.Background(), items)
	if result.Warmed != 1 || result.Failed != 1 {
		t.Errorf("Warm = %+v, want 1 warmed, 1 failed", result)
	}
}

func TestWarmer_AlreadyFreshCostsNothing(t *testing.T) {
	facade := newTestFacade(t)
	drivers := NewMarketDriversCache(facade)
	warmer := NewWarmer(drivers.Adapter, DefaultWarmerConfig())

	drivers.Set(context.Background(), "vix", []byte("cached"))

	var fetches int32
	result := warmer.Warm(context.Background(), []WarmItem{{
		Name: "vix",
		Fetch: func() ([]byte, error) {
			atomic.AddInt32(&fetches, 1)
			return []byte("new"), nil
		},
	}})
	if result.Warmed != 1 {
		t.Fatalf("Warm = %+v, want 1 warmed", result)
	}
	if atomic.LoadInt32(&fetches) != 0 {
		t.Error("fetch invoked for an already-fresh key")
	}
}

func TestWarmer_ContextCancelStopsEarly(t *testing.T) {
	facade := newTestFacade(t)
	sector := NewSectorCache(facade)
	warmer := NewWarmer(sector.Adapter, WarmerConfig{MaxConcurrency: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var fetches int32
	items := make([]WarmItem, 0, 10)
	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("SYM%d", i)
		items = append(items, WarmItem{
			Name: name,
			Fetch: func() ([]byte, error) {
				if atomic.AddInt32(&fetches, 1) == 1 {
					cancel()
				}
				return []byte(name), nil
			},
		})
	}

	warmer.Warm(ctx, items)
	if got := atomic.LoadInt32(&fetches); got >= 10 {
		t.Errorf("fetches = %d, want fewer than 10 after cancellation", got)
	}
}
