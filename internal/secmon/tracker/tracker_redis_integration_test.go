//go:build integration

package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"panelmerge/pkg/testutil/containers"
)

// =============================================================================
// Redis Tracker Integration Test Suite
// =============================================================================
// Justification: the Redis tracker is the multi-instance deployment path.
// These tests run the pipeline commands against a real server and verify
// window pruning, block TTL expiry via real key expiration, and clearing.

type RedisTrackerSuite struct {
	suite.Suite
	ctx     context.Context
	redis   *containers.RedisContainer
	tracker *Redis
}

func TestRedisTrackerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisTrackerSuite))
}

func (s *RedisTrackerSuite) SetupSuite() {
	s.ctx = context.Background()
	s.redis = containers.NewRedisContainer(s.T())
	s.tracker = NewRedis(s.redis.Client)
}

func (s *RedisTrackerSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisTrackerSuite) TestRequestWindowCounts() {
	for i := 1; i <= 5; i++ {
		count, err := s.tracker.RecordRequest(s.ctx, "10.0.0.1", time.Minute)
		s.Require().NoError(err)
		s.Equal(i, count)
	}

	count, err := s.tracker.RecordRequest(s.ctx, "10.0.0.2", time.Minute)
	s.Require().NoError(err)
	s.Equal(1, count, "windows are per IP")
}

func (s *RedisTrackerSuite) TestWindowPrunesOldEntries() {
	_, err := s.tracker.RecordRequest(s.ctx, "10.0.0.1", 300*time.Millisecond)
	s.Require().NoError(err)

	time.Sleep(400 * time.Millisecond)

	count, err := s.tracker.RecordRequest(s.ctx, "10.0.0.1", 300*time.Millisecond)
	s.Require().NoError(err)
	s.Equal(1, count, "entries outside the window are dropped")
}

func (s *RedisTrackerSuite) TestFailedLoginsAndClear() {
	for i := 1; i <= 3; i++ {
		count, err := s.tracker.RecordFailedLogin(s.ctx, "10.0.0.1", time.Minute)
		s.Require().NoError(err)
		s.Equal(i, count)
	}

	s.Require().NoError(s.tracker.ClearFailedLogins(s.ctx, "10.0.0.1"))

	count, err := s.tracker.RecordFailedLogin(s.ctx, "10.0.0.1", time.Minute)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *RedisTrackerSuite) TestBlockExpiresWithTTL() {
	s.Require().NoError(s.tracker.Block(s.ctx, "10.0.0.1", 500*time.Millisecond))

	blocked, err := s.tracker.IsBlocked(s.ctx, "10.0.0.1")
	s.Require().NoError(err)
	s.True(blocked)

	time.Sleep(700 * time.Millisecond)

	blocked, err = s.tracker.IsBlocked(s.ctx, "10.0.0.1")
	s.Require().NoError(err)
	s.False(blocked, "key expired with its TTL")
}

func (s *RedisTrackerSuite) TestPermanentBlock() {
	s.Require().NoError(s.tracker.Block(s.ctx, "10.0.0.1", 0))

	ttl, err := s.redis.Client.TTL(s.ctx, "secmon:block:10.0.0.1").Result()
	s.Require().NoError(err)
	s.Equal(time.Duration(-1), ttl, "persistent key has no expiry")

	blocked, err := s.tracker.IsBlocked(s.ctx, "10.0.0.1")
	s.Require().NoError(err)
	s.True(blocked)
}
