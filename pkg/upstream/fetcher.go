// Package upstream builds the caller-supplied fetch functions the cache
// core consumes: HTTP GETs against market data providers with error
// classification, exponential-backoff retry, conditional revalidation,
// and per-provider quota gating. The cache itself never sees any of
// this; it only invokes the zero-argument fetch closures produced here.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/yanggf8/cct-sub009/pkg/dedupe"
	"github.com/yanggf8/cct-sub009/pkg/logging"
)

// Prometheus metrics for upstream fetch operations.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cct_upstream_requests_total",
		Help: "Total upstream requests by provider and status",
	}, []string{"provider", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cct_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by provider",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"provider"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cct_upstream_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})

	upstreamNotModifiedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cct_upstream_not_modified_total",
		Help: "Total 304 Not Modified responses by provider",
	}, []string{"provider"})
)

// Config holds the fetcher configuration.
type Config struct {
	// UserAgent identifies this application to providers.
	UserAgent string

	// Timeout bounds a single fetch (including retries' individual
	// requests, not the backoff waits).
	Timeout time.Duration

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client

	// Quota gates fetches on provider request budgets. May be nil.
	Quota *Quota
}

// DefaultConfig returns a fetcher configuration with sane defaults.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent: userAgent,
		Timeout:   15 * time.Second,
	}
}

// Fetcher performs upstream HTTP fetches and turns them into cacheable
// payloads. It remembers response validators per URL so refreshes can be
// answered with 304 Not Modified instead of a full download.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
	quota      *Quota
	logger     zerolog.Logger

	mu         sync.Mutex
	validators map[string]*validators
}

// New creates an upstream fetcher.
func New(cfg Config) *Fetcher {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		httpClient: httpClient,
		userAgent:  cfg.UserAgent,
		timeout:    timeout,
		quota:      cfg.Quota,
		logger:     logging.NewLogger("upstream"),
		validators: make(map[string]*validators),
	}
}

// Get fetches a URL from the named provider. Retryable failures (5xx,
// 429, network) are retried with class-specific exponential backoff;
// client errors return immediately. A 304 answer returns the previously
// fetched body.
func (f *Fetcher) Get(ctx context.Context, provider, url string) ([]byte, error) {
	if f.quota != nil {
		if err := f.quota.Allow(ctx, provider); err != nil {
			upstreamErrorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
			return nil, err
		}
	}

	body, err := f.doOnce(ctx, provider, url)
	if err == nil {
		return body, nil
	}

	class := classify(err)
	upstreamErrorsTotal.WithLabelValues(string(class)).Inc()
	if !shouldRetry(class) {
		return nil, err
	}

	err = retryWithBackoff(ctx, class, func() error {
		var inner error
		body, inner = f.doOnce(ctx, provider, url)
		return inner
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// FetchFunc returns a zero-argument fetch closure for the given provider
// URL, in the shape the request deduplicator and the facade's
// revalidation path consume.
func (f *Fetcher) FetchFunc(provider, url string) dedupe.Fetch {
	return func() ([]byte, error) {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		defer cancel()
		return f.Get(ctx, provider, url)
	}
}

// doOnce performs a single conditional GET.
func (f *Fetcher) doOnce(ctx context.Context, provider, url string) ([]byte, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	f.mu.Lock()
	known := f.validators[url]
	f.mu.Unlock()
	known.addConditionalHeaders(req)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{
			Provider:   provider,
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	upstreamRequestsTotal.WithLabelValues(provider, strconv.Itoa(resp.StatusCode)).Inc()
	upstreamRequestDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	f.recordQuota(ctx, provider, resp)

	if resp.StatusCode == http.StatusNotModified {
		upstreamNotModifiedTotal.WithLabelValues(provider).Inc()
		f.logger.Debug().
			Str("provider", provider).
			Str("url", url).
			Msg("Provider confirmed payload unchanged")
		if known != nil {
			return known.body, nil
		}
		// Validators raced away; fall through as a server error so the
		// retry path refetches without conditions.
		f.forget(url)
		return nil, &ProviderError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassServer,
			Message:    "304 without stored payload",
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProviderError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			ErrorClass: classifyStatus(resp.StatusCode),
			Message:    "unexpected status",
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read response body",
			Err:        err,
		}
	}

	f.mu.Lock()
	if v := validatorsFromResponse(resp, body); v != nil {
		f.validators[url] = v
	} else {
		delete(f.validators, url)
	}
	f.mu.Unlock()

	return body, nil
}

// forget drops stored validators for a URL.
func (f *Fetcher) forget(url string) {
	f.mu.Lock()
	delete(f.validators, url)
	f.mu.Unlock()
}

// recordQuota parses provider rate-limit headers and records the budget.
func (f *Fetcher) recordQuota(ctx context.Context, provider string, resp *http.Response) {
	if f.quota == nil {
		return
	}
	remainStr := resp.Header.Get("X-RateLimit-Remaining")
	resetStr := resp.Header.Get("X-RateLimit-Reset")
	if remainStr == "" || resetStr == "" {
		return
	}
	remaining, err := strconv.Atoi(remainStr)
	if err != nil {
		return
	}
	resetSeconds, err := strconv.Atoi(resetStr)
	if err != nil {
		return
	}
	f.quota.Record(ctx, provider, remaining, time.Now().Add(time.Duration(resetSeconds)*time.Second))
}

// classify extracts the error class from a fetch error.
func classify(err error) ErrorClass {
	if pe, ok := err.(*ProviderError); ok {
		return pe.ErrorClass
	}
	return ErrorClassNetwork
}
