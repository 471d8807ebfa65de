package abuse_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/nexabot/guardrail/internal/abuse"
	"github.com/nexabot/guardrail/internal/config"
	"github.com/nexabot/guardrail/internal/store"
	"github.com/nexabot/guardrail/pkg/constants"
	"github.com/nexabot/guardrail/pkg/logger"
)

func newMemoryOnlyDetector(t *testing.T) *abuse.Detector {
	t.Helper()
	kv := store.NewRedisStore(&config.RedisConfig{}, logger.NewNoopLogger())
	d := abuse.New(kv, logger.NewNoopLogger())
	t.Cleanup(func() { d.Close() })
	return d
}

func TestCleanMessageAllowed(t *testing.T) {
	d := newMemoryOnlyDetector(t)

	res, err := d.CheckMessage(context.Background(), "user-1", "hello, how do I reset my password?")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Score)
}

func TestSQLInjectionScores(t *testing.T) {
	d := newMemoryOnlyDetector(t)

	res, err := d.CheckMessage(context.Background(), "user-1", "1 UNION SELECT password FROM users")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 50, res.Score)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, constants.ViolationSQLInjection, res.Violations[0].Type)
}

func TestXSSScores(t *testing.T) {
	d := newMemoryOnlyDetector(t)

	res, err := d.CheckMessage(context.Background(), "user-1", `<script>alert(1)</script>`)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 50, res.Score)
}

func TestScoreAccumulatesToBlock(t *testing.T) {
	d := newMemoryOnlyDetector(t)
	ctx := context.Background()

	res, err := d.CheckMessage(ctx, "user-1", "x' OR '1'='1")
	require.NoError(t, err)
	require.True(t, res.Allowed)
	require.Equal(t, 50, res.Score)

	res, err = d.CheckMessage(ctx, "user-1", `<iframe src="evil">`)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 100, res.Score)

	// Blocked identifiers are denied even for harmless messages.
	res, err = d.CheckMessage(ctx, "user-1", "sorry about that")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Contains(t, res.Reason, "blocked")
}

func TestSpamTriggersOnThirdDuplicate(t *testing.T) {
	d := newMemoryOnlyDetector(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := d.CheckMessage(ctx, "user-1", "buy now")
		require.NoError(t, err)
		require.True(t, res.Allowed)
		require.Equal(t, 0, res.Score, "message %d", i+1)
	}

	res, err := d.CheckMessage(ctx, "user-1", "buy now")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 10, res.Score)
}

func TestSpamHistoryIsBounded(t *testing.T) {
	d := newMemoryOnlyDetector(t)
	ctx := context.Background()

	res, err := d.CheckMessage(ctx, "user-1", "repeat me")
	require.NoError(t, err)
	require.Equal(t, 0, res.Score)

	// Push the first occurrence out of the trailing window.
	for i := 0; i < constants.SpamHistorySize; i++ {
		_, err := d.CheckMessage(ctx, "user-1", fmt.Sprintf("filler %d", i))
		require.NoError(t, err)
	}

	res, err = d.CheckMessage(ctx, "user-1", "repeat me")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Score)
}

func TestSuspiciousPayloadScores(t *testing.T) {
	d := newMemoryOnlyDetector(t)

	res, err := d.CheckMessage(context.Background(), "user-1", "%41%42%43%44%45%46%47%48%49%4a%4b")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 20, res.Score)
}

func TestResetClearsState(t *testing.T) {
	d := newMemoryOnlyDetector(t)
	ctx := context.Background()

	_, err := d.CheckMessage(ctx, "user-1", "DROP TABLE users")
	require.NoError(t, err)
	_, err = d.CheckMessage(ctx, "user-1", "javascript:void(0)")
	require.NoError(t, err)

	require.NoError(t, d.Reset(ctx, "user-1"))

	res, err := d.CheckMessage(ctx, "user-1", "hello again")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Score)
}

func TestGetStatus(t *testing.T) {
	d := newMemoryOnlyDetector(t)
	ctx := context.Background()

	st, err := d.GetStatus(ctx, "unseen")
	require.NoError(t, err)
	assert.Nil(t, st)

	_, err = d.CheckMessage(ctx, "user-1", "DELETE FROM accounts")
	require.NoError(t, err)

	st, err = d.GetStatus(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, 50, st.Score)
	assert.False(t, st.Blocked)
	require.Len(t, st.Violations, 1)
	assert.Equal(t, constants.ViolationSQLInjection, st.Violations[0].Type)
}

type DurableDetectorTestSuite struct {
	suite.Suite
	mr       *miniredis.Miniredis
	kv       *store.RedisStore
	detector *abuse.Detector
	ctx      context.Context
}

func (s *DurableDetectorTestSuite) SetupTest() {
	var err error
	s.mr, err = miniredis.Run()
	s.Require().NoError(err)

	s.kv = store.NewRedisStore(&config.RedisConfig{Addr: s.mr.Addr()}, logger.NewNoopLogger())
	s.detector = abuse.New(s.kv, logger.NewNoopLogger())
	s.ctx = context.Background()
}

func (s *DurableDetectorTestSuite) TearDownTest() {
	s.detector.Close()
	s.kv.Close()
	s.mr.Close()
}

func TestDurableDetectorTestSuite(t *testing.T) {
	suite.Run(t, new(DurableDetectorTestSuite))
}

func (s *DurableDetectorTestSuite) TestScoreAccumulatesAcrossChecks() {
	res, err := s.detector.CheckMessage(s.ctx, "user-1", "EXEC xp_cmdshell('dir')")
	s.Require().NoError(err)
	s.True(res.Allowed)
	s.Equal(50, res.Score)

	res, err = s.detector.CheckMessage(s.ctx, "user-1", `<object data="evil">`)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Equal(100, res.Score)
}

func (s *DurableDetectorTestSuite) TestSpamTriggersOnThirdDuplicate() {
	for i := 0; i < 2; i++ {
		res, err := s.detector.CheckMessage(s.ctx, "user-1", "buy now")
		s.Require().NoError(err)
		s.Require().Equal(0, res.Score)
	}
	res, err := s.detector.CheckMessage(s.ctx, "user-1", "buy now")
	s.Require().NoError(err)
	s.Equal(10, res.Score)
}

func (s *DurableDetectorTestSuite) TestBlockExpires() {
	_, err := s.detector.CheckMessage(s.ctx, "user-1", "1 UNION SELECT * FROM users")
	s.Require().NoError(err)
	res, err := s.detector.CheckMessage(s.ctx, "user-1", `<embed src="evil">`)
	s.Require().NoError(err)
	s.Require().False(res.Allowed)

	s.mr.FastForward(constants.AbuseBlockDuration + time.Minute)

	res, err = s.detector.CheckMessage(s.ctx, "user-1", "hello")
	s.Require().NoError(err)
	s.True(res.Allowed)
}

func (s *DurableDetectorTestSuite) TestResetClearsAllKeys() {
	_, err := s.detector.CheckMessage(s.ctx, "user-1", "INSERT INTO admins VALUES ('me')")
	s.Require().NoError(err)

	s.Require().NoError(s.detector.Reset(s.ctx, "user-1"))

	for _, prefix := range []string{
		constants.AbuseScoreKeyPrefix,
		constants.AbuseBlockKeyPrefix,
		constants.AbuseHistoryKeyPrefix,
	} {
		ok, err := s.kv.Exists(s.ctx, prefix+"user-1")
		s.Require().NoError(err)
		s.False(ok, "key %suser-1 should be gone", prefix)
	}
}

func (s *DurableDetectorTestSuite) TestGetStatus() {
	st, err := s.detector.GetStatus(s.ctx, "unseen")
	s.Require().NoError(err)
	s.Nil(st)

	_, err = s.detector.CheckMessage(s.ctx, "user-1", "onload=alert(1)")
	s.Require().NoError(err)

	st, err = s.detector.GetStatus(s.ctx, "user-1")
	s.Require().NoError(err)
	s.Require().NotNil(st)
	s.Equal(50, st.Score)
	s.False(st.Blocked)
}
