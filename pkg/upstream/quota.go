package upstream

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for provider quota tracking.
var (
	quotaRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cct_quota_remaining",
		Help: "Requests remaining in the provider's current quota window",
	}, []string{"provider"})

	quotaBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cct_quota_blocks_total",
		Help: "Total number of fetches blocked by an exhausted provider quota",
	}, []string{"provider"})
)

// quotaKey is the Redis key holding a provider's quota state. The state
// is shared through Redis so every instance sees the same budget.
func quotaKey(provider string) string {
	return "cct:quota:" + provider
}

// QuotaState is a provider's request budget as last reported by the
// provider's response headers.
type QuotaState struct {
	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was recorded, used to detect
	// staleness.
	LastUpdate time.Time `json:"last_update"`
}

// quotaBlockThreshold stops fetches before the budget is fully spent, so
// background revalidations cannot starve interactive requests of the
// last few calls.
const quotaBlockThreshold = 2

// Quota gates upstream fetches on per-provider request budgets. Market
// data providers enforce strict per-minute/per-day quotas; exceeding
// them trades one failed call for a lockout, so fetches stop early.
//
// A nil Redis client disables gating entirely: every fetch is allowed
// and Record is a no-op.
type Quota struct {
	redis  *redis.Client
	logger zerolog.Logger
	now    func() time.Time
}

// NewQuota creates a provider quota tracker. redisClient may be nil.
func NewQuota(redisClient *redis.Client, logger zerolog.Logger) *Quota {
	return &Quota{
		redis:  redisClient,
		logger: logger,
		now:    time.Now,
	}
}

// Allow reports whether a fetch to the provider may proceed. Unknown
// providers and stale state are allowed; a tracker without Redis always
// allows. Returns ErrQuotaExceeded when the budget is spent and the
// window has not reset yet.
func (q *Quota) Allow(ctx context.Context, provider string) error {
	state, err := q.state(ctx, provider)
	if err != nil || state == nil {
		// Quota state unavailable: fail open, the provider will answer
		// with 429 if we were wrong.
		return nil
	}

	if q.now().After(state.ResetAt) {
		return nil
	}

	quotaRemaining.WithLabelValues(provider).Set(float64(state.Remaining))
	if state.Remaining <= quotaBlockThreshold {
		quotaBlocksTotal.WithLabelValues(provider).Inc()
		q.logger.Warn().
			Str("provider", provider).
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Blocking fetch, provider quota nearly spent")
		return fmt.Errorf("%w: %s resets at %s", ErrQuotaExceeded, provider, state.ResetAt.Format(time.RFC3339))
	}
	return nil
}

// Record stores the provider's reported budget, typically parsed from
// rate-limit response headers after each fetch. Best effort: a Redis
// failure is logged and swallowed.
func (q *Quota) Record(ctx context.Context, provider string, remaining int, resetAt time.Time) {
	if q.redis == nil {
		return
	}
	state := QuotaState{
		Remaining:  remaining,
		ResetAt:    resetAt,
		LastUpdate: q.now(),
	}
	quotaRemaining.WithLabelValues(provider).Set(float64(remaining))

	ttl := time.Until(resetAt)
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := q.redis.HSet(ctx, quotaKey(provider), map[string]interface{}{
		"remaining":   remaining,
		"reset_at":    resetAt.Unix(),
		"last_update": state.LastUpdate.Unix(),
	}).Err(); err != nil {
		q.logger.Warn().Err(err).Str("provider", provider).Msg("Failed to record provider quota")
		return
	}
	if err := q.redis.Expire(ctx, quotaKey(provider), ttl).Err(); err != nil {
		q.logger.Warn().Err(err).Str("provider", provider).Msg("Failed to expire provider quota key")
	}
}

// state reads the provider's quota state from Redis. Returns nil state
// when none is recorded.
func (q *Quota) state(ctx context.Context, provider string) (*QuotaState, error) {
	if q.redis == nil {
		return nil, nil
	}
	fields, err := q.redis.HGetAll(ctx, quotaKey(provider)).Result()
	if err != nil {
		q.logger.Warn().Err(err).Str("provider", provider).Msg("Failed to read provider quota")
		return nil, fmt.Errorf("quota hgetall: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	var state QuotaState
	state.Remaining, _ = strconv.Atoi(fields["remaining"])
	resetUnix, _ := strconv.ParseInt(fields["reset_at"], 10, 64)
	updateUnix, _ := strconv.ParseInt(fields["last_update"], 10, 64)
	state.ResetAt = time.Unix(resetUnix, 0)
	state.LastUpdate = time.Unix(updateUnix, 0)
	return &state, nil
}
