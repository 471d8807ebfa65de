package store

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nexabot/guardrail/internal/config"
	"github.com/nexabot/guardrail/pkg/logger"
)

// RedisStore implements KeyValueStore on a shared Redis connection.
//
// The connection is created lazily on first use and reused for the process
// lifetime. Connection failures are logged and surface as operational errors;
// go-redis retries with bounded exponential backoff between 50ms and 2s.
type RedisStore struct {
	cfg *config.RedisConfig
	log logger.Logger

	once   sync.Once
	client *redis.Client
}

// NewRedisStore creates a store for the given configuration. If no address is
// configured the store is permanently unavailable and every operation returns
// its neutral default.
func NewRedisStore(cfg *config.RedisConfig, log logger.Logger) *RedisStore {
	s := &RedisStore{cfg: cfg, log: log.WithComponent("store")}
	if !cfg.Enabled() {
		s.log.Warn(context.Background(), "redis address not configured, running in degraded in-memory mode")
	}
	return s
}

// getClient lazily initializes the shared client. Returns nil when no durable
// store is configured.
func (s *RedisStore) getClient() *redis.Client {
	if !s.cfg.Enabled() {
		return nil
	}
	s.once.Do(func() {
		s.client = redis.NewClient(&redis.Options{
			Addr:         s.cfg.Addr,
			Password:     s.cfg.Password,
			DB:           s.cfg.DB,
			PoolSize:     s.cfg.PoolSize,
			MinIdleConns: s.cfg.MinIdleConns,
			DialTimeout:  time.Duration(s.cfg.DialTimeout) * time.Second,
			ReadTimeout:  time.Duration(s.cfg.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(s.cfg.WriteTimeout) * time.Second,

			// Reconnect with bounded exponential backoff.
			MaxRetries:      3,
			MinRetryBackoff: 50 * time.Millisecond,
			MaxRetryBackoff: 2 * time.Second,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.client.Ping(ctx).Err(); err != nil {
			// Keep the client; go-redis reconnects on subsequent commands.
			s.log.Error(ctx, "redis ping failed", err, logger.Fields{"addr": s.cfg.Addr})
		} else {
			s.log.Info(ctx, "redis connection established", logger.Fields{"addr": s.cfg.Addr})
		}
	})
	return s.client
}

// Available reports whether a durable store is configured.
func (s *RedisStore) Available() bool {
	return s.getClient() != nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	client := s.getClient()
	if client == nil {
		return nil
	}
	return client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	client := s.getClient()
	if client == nil {
		return "", nil
	}
	val, err := client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	client := s.getClient()
	if client == nil {
		return nil
	}
	return client.Del(ctx, key).Err()
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	client := s.getClient()
	if client == nil {
		return 0, nil
	}
	return client.Incr(ctx, key).Result()
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	client := s.getClient()
	if client == nil {
		return nil
	}
	return client.Expire(ctx, key, ttl).Err()
}

func (s *RedisStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	client := s.getClient()
	if client == nil {
		return nil
	}
	return client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (s *RedisStore) ZRemRangeByScore(ctx context.Context, key string, min, max float64) error {
	client := s.getClient()
	if client == nil {
		return nil
	}
	return client.ZRemRangeByScore(ctx, key, formatScore(min), formatScore(max)).Err()
}

func (s *RedisStore) ZCount(ctx context.Context, key string, min, max float64) (int64, error) {
	client := s.getClient()
	if client == nil {
		return 0, nil
	}
	return client.ZCount(ctx, key, formatScore(min), formatScore(max)).Result()
}

func (s *RedisStore) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	client := s.getClient()
	if client == nil {
		return nil, nil
	}
	return client.ZRange(ctx, key, start, stop).Result()
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	client := s.getClient()
	if client == nil {
		return false, nil
	}
	n, err := client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	client := s.getClient()
	if client == nil {
		return -1, nil
	}
	return client.TTL(ctx, key).Result()
}

// Close closes the shared connection if it was ever created.
func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// formatScore renders a score without exponent notation so Redis parses the
// full millisecond timestamp.
func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
