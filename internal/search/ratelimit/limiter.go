// internal/search/ratelimit/limiter.go
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carsearch/internal/common/config"
	"carsearch/internal/common/logger"
)

var (
	ErrUnknownAction = errors.New("UNKNOWN_ACTION")
)

// Decision is the outcome of one admission check. RetryAfter is meaningful
// only when Allowed is false.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter enforces named fixed-window limits per (identity, action). All
// state lives in the injected Store so concurrent replicas share windows and
// tests can run against the in-memory implementation.
type Limiter struct {
	store  Store
	limits map[string]config.LimitConfig
	logger logger.Logger
}

func NewLimiter(store Store, limits map[string]config.LimitConfig, log logger.Logger) *Limiter {
	return &Limiter{
		store:  store,
		limits: limits,
		logger: log.WithFields(map[string]interface{}{"component": "ratelimit"}),
	}
}

// Allow registers one request for identity/action and decides admission.
// The register step is the store's atomic check-and-increment, so at a
// one-remaining-slot boundary exactly one of two concurrent calls wins.
func (l *Limiter) Allow(ctx context.Context, identity, action string) (Decision, error) {
	limit, ok := l.limits[action]
	if !ok {
		return Decision{}, fmt.Errorf("%w: no limit configured for action '%s'", ErrUnknownAction, action)
	}

	key := fmt.Sprintf("ratelimit:%s:%s", action, identity)
	count, remaining, err := l.store.Incr(ctx, key, limit.Window())
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit store: %w", err)
	}

	if count > int64(limit.Requests) {
		l.logger.Debug("request denied by rate limit", map[string]interface{}{
			"identity":   identity,
			"action":     action,
			"count":      count,
			"limit":      limit.Requests,
			"retryAfter": remaining.String(),
		})
		return Decision{Allowed: false, RetryAfter: remaining}, nil
	}

	return Decision{Allowed: true, Remaining: limit.Requests - int(count)}, nil
}
