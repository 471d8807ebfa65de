package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/suite"

	"github.com/nexabot/guardrail/internal/config"
	"github.com/nexabot/guardrail/internal/store"
	"github.com/nexabot/guardrail/pkg/logger"
)

type RedisStoreTestSuite struct {
	suite.Suite
	mr    *miniredis.Miniredis
	store *store.RedisStore
	ctx   context.Context
}

func (s *RedisStoreTestSuite) SetupTest() {
	var err error
	s.mr, err = miniredis.Run()
	s.Require().NoError(err)

	s.store = store.NewRedisStore(&config.RedisConfig{Addr: s.mr.Addr()}, logger.NewNoopLogger())
	s.ctx = context.Background()
}

func (s *RedisStoreTestSuite) TearDownTest() {
	s.store.Close()
	s.mr.Close()
}

func TestRedisStoreTestSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreTestSuite))
}

func (s *RedisStoreTestSuite) TestSetGet() {
	s.Require().NoError(s.store.Set(s.ctx, "k", "v", time.Minute))

	val, err := s.store.Get(s.ctx, "k")
	s.Require().NoError(err)
	s.Equal("v", val)
}

func (s *RedisStoreTestSuite) TestGetMissingKey() {
	val, err := s.store.Get(s.ctx, "absent")
	s.Require().NoError(err)
	s.Equal("", val)
}

func (s *RedisStoreTestSuite) TestDel() {
	s.Require().NoError(s.store.Set(s.ctx, "k", "v", time.Minute))
	s.Require().NoError(s.store.Del(s.ctx, "k"))

	val, err := s.store.Get(s.ctx, "k")
	s.Require().NoError(err)
	s.Equal("", val)
}

func (s *RedisStoreTestSuite) TestIncr() {
	n, err := s.store.Incr(s.ctx, "counter")
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	n, err = s.store.Incr(s.ctx, "counter")
	s.Require().NoError(err)
	s.Equal(int64(2), n)
}

func (s *RedisStoreTestSuite) TestExpire() {
	s.Require().NoError(s.store.Set(s.ctx, "k", "v", 0))
	s.Require().NoError(s.store.Expire(s.ctx, "k", 10*time.Second))

	ttl, err := s.store.TTL(s.ctx, "k")
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))

	s.mr.FastForward(11 * time.Second)

	val, err := s.store.Get(s.ctx, "k")
	s.Require().NoError(err)
	s.Equal("", val)
}

func (s *RedisStoreTestSuite) TestExists() {
	ok, err := s.store.Exists(s.ctx, "k")
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(s.store.Set(s.ctx, "k", "v", time.Minute))

	ok, err = s.store.Exists(s.ctx, "k")
	s.Require().NoError(err)
	s.True(ok)
}

func (s *RedisStoreTestSuite) TestSortedSetOperations() {
	key := "zset"
	s.Require().NoError(s.store.ZAdd(s.ctx, key, 1000, "1000-a"))
	s.Require().NoError(s.store.ZAdd(s.ctx, key, 2000, "2000-b"))
	s.Require().NoError(s.store.ZAdd(s.ctx, key, 3000, "3000-c"))

	count, err := s.store.ZCount(s.ctx, key, 0, 3000)
	s.Require().NoError(err)
	s.Equal(int64(3), count)

	members, err := s.store.ZRange(s.ctx, key, 0, 0)
	s.Require().NoError(err)
	s.Equal([]string{"1000-a"}, members)

	s.Require().NoError(s.store.ZRemRangeByScore(s.ctx, key, 0, 1500))

	count, err = s.store.ZCount(s.ctx, key, 0, 3000)
	s.Require().NoError(err)
	s.Equal(int64(2), count)

	members, err = s.store.ZRange(s.ctx, key, 0, 0)
	s.Require().NoError(err)
	s.Equal([]string{"2000-b"}, members)
}

func (s *RedisStoreTestSuite) TestAvailable() {
	s.True(s.store.Available())
}

func TestUnconfiguredStoreReturnsNeutralDefaults(t *testing.T) {
	kv := store.NewRedisStore(&config.RedisConfig{}, logger.NewNoopLogger())
	ctx := context.Background()

	if kv.Available() {
		t.Fatal("store without an address must not report available")
	}

	val, err := kv.Get(ctx, "k")
	if err != nil || val != "" {
		t.Fatalf("Get = (%q, %v), want empty miss", val, err)
	}
	if err := kv.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set returned %v", err)
	}
	count, err := kv.ZCount(ctx, "z", 0, 100)
	if err != nil || count != 0 {
		t.Fatalf("ZCount = (%d, %v), want zero", count, err)
	}
	ok, err := kv.Exists(ctx, "k")
	if err != nil || ok {
		t.Fatalf("Exists = (%v, %v), want false", ok, err)
	}
	if err := kv.Close(); err != nil {
		t.Fatalf("Close returned %v", err)
	}
}
