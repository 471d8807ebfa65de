// Package ratelimit implements sliding-window request admission control keyed
// by an opaque identifier (IP address, user id, or composite key).
//
// The durable path keeps one Redis sorted set per identifier whose members
// are request timestamps; the in-process fallback keeps an equivalent ordered
// slice per identifier. Both paths produce the same admit/deny decision for
// equivalent request traces. Any operational error on the durable path falls
// back transparently to the in-process path for that call; callers always
// receive a decision, never a store error.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nexabot/guardrail/internal/store"
	"github.com/nexabot/guardrail/pkg/constants"
	"github.com/nexabot/guardrail/pkg/errors"
	"github.com/nexabot/guardrail/pkg/logger"
)

// Decision is the verdict of a rate-limit check.
type Decision struct {
	// Allowed reports whether the request was admitted.
	Allowed bool
	// Remaining is the number of requests left in the current window.
	Remaining int
	// ResetTime is when the oldest recorded request leaves the window.
	ResetTime time.Time
	// RetryAfter is how long a denied caller should wait, rounded up to
	// whole seconds. Zero when allowed.
	RetryAfter time.Duration
}

// Limiter performs sliding-window admission control against the shared store,
// with an in-process fallback holding independent per-identifier state.
type Limiter struct {
	store store.KeyValueStore
	log   logger.Logger
	mem   *memoryLimiter
}

// New creates a Limiter. The in-process fallback sweeper runs until Close is
// called.
func New(kv store.KeyValueStore, log logger.Logger) *Limiter {
	l := &Limiter{
		store: kv,
		log:   log.WithComponent("ratelimit"),
		mem:   newMemoryLimiter(),
	}
	if kv.Available() {
		l.log.Info(context.Background(), "rate limiter using durable store")
	} else {
		l.log.Warn(context.Background(), "rate limiter using in-memory storage, state is per-instance")
	}
	return l
}

// Check decides whether a request for identifier is admitted under the given
// limit and window. Invalid parameters are a programmer error and return an
// error; store trouble never does.
func (l *Limiter) Check(ctx context.Context, identifier string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 {
		return Decision{}, errors.ErrInvalidParam("rate limit must be positive, got %d", limit)
	}
	if window <= 0 {
		return Decision{}, errors.ErrInvalidParam("rate limit window must be positive, got %s", window)
	}

	if l.store.Available() {
		dec, err := l.checkStore(ctx, identifier, limit, window)
		if err == nil {
			return dec, nil
		}
		l.log.Error(ctx, "durable rate limit check failed, falling back to memory", err,
			logger.Fields{"identifier": identifier})
	}
	return l.mem.check(identifier, limit, window), nil
}

// CheckProfile is a convenience wrapper applying a predefined profile.
func (l *Limiter) CheckProfile(ctx context.Context, identifier string, p constants.Profile) (Decision, error) {
	return l.Check(ctx, identifier, p.Limit, p.Window)
}

// checkStore runs the sliding-window algorithm on the durable sorted set.
func (l *Limiter) checkStore(ctx context.Context, identifier string, limit int, window time.Duration) (Decision, error) {
	now := time.Now()
	nowMs := now.UnixMilli()
	windowStart := nowMs - window.Milliseconds()
	key := constants.RateLimitKeyPrefix + identifier

	// Prune timestamps that have slid out of the window.
	if err := l.store.ZRemRangeByScore(ctx, key, 0, float64(windowStart)); err != nil {
		return Decision{}, err
	}

	count, err := l.store.ZCount(ctx, key, float64(windowStart), float64(nowMs))
	if err != nil {
		return Decision{}, err
	}

	if count >= int64(limit) {
		resetTime, err := l.oldestResetTime(ctx, key, window, now)
		if err != nil {
			return Decision{}, err
		}
		return Decision{
			Allowed:    false,
			Remaining:  0,
			ResetTime:  resetTime,
			RetryAfter: retryAfter(resetTime, now),
		}, nil
	}

	// Record this request. The appended suffix keeps equal-millisecond
	// requests as distinct members.
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())
	if err := l.store.ZAdd(ctx, key, float64(nowMs), member); err != nil {
		return Decision{}, err
	}
	if err := l.store.Expire(ctx, key, window+constants.RateLimitKeyGrace); err != nil {
		return Decision{}, err
	}

	resetTime, err := l.oldestResetTime(ctx, key, window, now)
	if err != nil {
		return Decision{}, err
	}

	return Decision{
		Allowed:   true,
		Remaining: limit - int(count) - 1,
		ResetTime: resetTime,
	}, nil
}

// oldestResetTime reads the oldest surviving timestamp and returns when it
// leaves the window.
func (l *Limiter) oldestResetTime(ctx context.Context, key string, window time.Duration, now time.Time) (time.Time, error) {
	members, err := l.store.ZRange(ctx, key, 0, 0)
	if err != nil {
		return time.Time{}, err
	}
	oldest := now.UnixMilli()
	if len(members) > 0 {
		if ts, ok := parseMemberTimestamp(members[0]); ok {
			oldest = ts
		}
	}
	return time.UnixMilli(oldest).Add(window), nil
}

// Reset clears all recorded state for identifier in both tiers.
func (l *Limiter) Reset(ctx context.Context, identifier string) error {
	l.mem.reset(identifier)
	if l.store.Available() {
		return l.store.Del(ctx, constants.RateLimitKeyPrefix+identifier)
	}
	return nil
}

// Status reports the in-process window state for identifier, or nil if none
// is held. Durable-tier state is not consulted.
func (l *Limiter) Status(identifier string) *Status {
	return l.mem.status(identifier)
}

// Close stops the in-process sweeper.
func (l *Limiter) Close() error {
	l.mem.stop()
	return nil
}

// parseMemberTimestamp extracts the millisecond timestamp prefix from a
// sorted-set member of the form "<unixMilli>-<suffix>".
func parseMemberTimestamp(member string) (int64, bool) {
	idx := strings.IndexByte(member, '-')
	if idx < 0 {
		idx = len(member)
	}
	ts, err := strconv.ParseInt(member[:idx], 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}

// retryAfter rounds the wait up to whole seconds, minimum one second.
func retryAfter(resetTime, now time.Time) time.Duration {
	wait := resetTime.Sub(now)
	if wait <= 0 {
		return time.Second
	}
	secs := (wait + time.Second - 1) / time.Second
	return secs * time.Second
}
