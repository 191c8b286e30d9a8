package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/yanggf8/cct-sub009/pkg/cache"
	"github.com/yanggf8/cct-sub009/pkg/dedupe"
	"github.com/yanggf8/cct-sub009/pkg/logging"
)

func main() {
	// Configuration from environment
	redisURL := getEnv("REDIS_URL", "localhost:6379")
	port := getEnv("PORT", "8080")
	logLevel := getEnv("LOG_LEVEL", "info")
	maxEntries := getEnvInt("CACHE_MAX_ENTRIES", 10000)
	maxBytes := getEnvInt("CACHE_MAX_BYTES", 64<<20)

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(logLevel),
		Output: os.Stderr,
	})

	// Setup Redis; the durable tier is optional and the facade degrades
	// without it.
	var durable cache.DurableTier
	ctx := context.Background()
	if redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: redisURL,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", redisURL).
				Msg("Redis unreachable, running without durable tier")
		} else {
			durable = cache.NewRedisStore(redisClient)
			logger.Info().Str("addr", redisURL).Msg("Connected to Redis")
		}
	}

	store := cache.NewStore(cache.StoreConfig{
		MaxEntries: maxEntries,
		MaxBytes:   int64(maxBytes),
	}, logging.NewLogger("store"))
	defer store.Close()

	facade := cache.New(store, durable, dedupe.New(logging.NewLogger("dedupe")), logging.NewLogger("cache"))

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler(facade))
	mux.HandleFunc("/stats", statsHandler(facade))
	mux.HandleFunc("/cache/", adminHandler(facade, logger))
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":" + port
	logger.Info().Str("addr", addr).Msg("Starting cache service")

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

// healthHandler reports per-tier availability.
func healthHandler(facade *cache.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		health := facade.HealthCheck(ctx)
		w.Header().Set("Content-Type", "application/json")
		if health.Degraded {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	}
}

// statsHandler exposes occupancy, hit/miss counters and the dedup rate.
func statsHandler(facade *cache.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(facade.Stats())
	}
}

// adminHandler serves the manual invalidation surface:
//
//	DELETE /cache/{namespace}/{key}  - targeted invalidation
//	POST   /cache/{namespace}/clear  - namespace invalidation
func adminHandler(facade *cache.Facade, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/cache/"), "/"), "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			http.Error(w, "expected /cache/{namespace}/{key}", http.StatusNotFound)
			return
		}
		namespace, name := parts[0], parts[1]

		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		switch {
		case r.Method == http.MethodPost && name == "clear":
			removed := facade.Clear(ctx, namespace)
			logger.Info().Str("namespace", namespace).Int("removed", removed).
				Msg("Namespace cleared by operator")
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]int{"removed": removed})

		case r.Method == http.MethodDelete:
			facade.Delete(ctx, cache.NewKey(namespace, name))
			logger.Info().Str("namespace", namespace).Str("key", name).
				Msg("Key invalidated by operator")
			w.WriteHeader(http.StatusNoContent)

		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
