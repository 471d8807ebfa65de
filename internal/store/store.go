// Package store provides the shared key-value store abstraction used by the
// rate limiter, abuse detector, and bot-configuration cache.
//
// The durable implementation is backed by Redis. Every operation is safe to
// call when no durable store is configured: it returns a neutral default
// (empty string, zero, false, nil slice) instead of an error, so callers can
// treat "store absent" as a cache miss. Operational errors on a configured
// store are returned so callers can fall back to their in-process state for
// that call.
package store

import (
	"context"
	"time"
)

// KeyValueStore is the uniform contract over the durable shared store.
// Implementations partition state purely by key namespace; no cross-component
// locking is required because namespaces never overlap.
type KeyValueStore interface {
	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns the value for key, or "" on a miss.
	Get(ctx context.Context, key string) (string, error)
	// Del removes key.
	Del(ctx context.Context, key string) error
	// Incr increments the integer counter at key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	// Expire sets the expiry of key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// ZAdd adds member to the sorted set at key with the given score.
	ZAdd(ctx context.Context, key string, score float64, member string) error
	// ZRemRangeByScore removes members of the sorted set at key whose score
	// lies in [min, max].
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) error
	// ZCount counts members of the sorted set at key whose score lies in
	// [min, max].
	ZCount(ctx context.Context, key string, min, max float64) (int64, error)
	// ZRange returns members of the sorted set at key by rank, ordered by
	// ascending score. Negative indices count from the end, -1 being the
	// last member.
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// TTL returns the remaining lifetime of key, or a negative duration if
	// the key has no expiry or does not exist.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Available reports whether a durable store is configured and believed
	// reachable. Callers use this to select between the durable and
	// in-process code paths.
	Available() bool

	// Close releases the underlying connection.
	Close() error
}
