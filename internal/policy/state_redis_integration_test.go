//go:build integration

package policy_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"riskgate/internal/policy"
	"riskgate/pkg/testutil/containers"
)

type RedisStateSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	state *policy.RedisStateStore
}

func TestRedisStateSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStateSuite))
}

func (s *RedisStateSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.state = policy.NewRedisStateStore(s.redis.Client)
}

func (s *RedisStateSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStateSuite) TestActionQuota() {
	ctx := context.Background()

	s.Run("claims count up from one", func() {
		n, err := s.state.IncrementActions(ctx, "u1", "2026-08-31")
		s.Require().NoError(err)
		s.Equal(1, n)

		n, err = s.state.IncrementActions(ctx, "u1", "2026-08-31")
		s.Require().NoError(err)
		s.Equal(2, n)
	})

	s.Run("released claims free the quota", func() {
		s.Require().NoError(s.state.DecrementActions(ctx, "u1", "2026-08-31"))
		n, err := s.state.ActionsToday(ctx, "u1", "2026-08-31")
		s.Require().NoError(err)
		s.Equal(1, n)
	})

	s.Run("day buckets are independent", func() {
		n, err := s.state.IncrementActions(ctx, "u1", "2026-09-01")
		s.Require().NoError(err)
		s.Equal(1, n)
	})

	s.Run("users are independent", func() {
		n, err := s.state.ActionsToday(ctx, "u2", "2026-08-31")
		s.Require().NoError(err)
		s.Zero(n)
	})
}

func (s *RedisStateSuite) TestConcurrentClaims() {
	ctx := context.Background()
	const goroutines = 50

	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.state.IncrementActions(ctx, "u1", "2026-08-31")
			s.NoError(err)
		}()
	}
	wg.Wait()

	n, err := s.state.ActionsToday(ctx, "u1", "2026-08-31")
	s.Require().NoError(err)
	s.Equal(goroutines, n)
}

func (s *RedisStateSuite) TestStreak() {
	ctx := context.Background()

	s.Run("high-risk events extend the streak", func() {
		n, err := s.state.BumpStreak(ctx, "u1", true)
		s.Require().NoError(err)
		s.Equal(1, n)

		n, err = s.state.BumpStreak(ctx, "u1", true)
		s.Require().NoError(err)
		s.Equal(2, n)
	})

	s.Run("low-risk events read without extending", func() {
		n, err := s.state.BumpStreak(ctx, "u1", false)
		s.Require().NoError(err)
		s.Equal(2, n)
	})

	s.Run("reset clears the streak", func() {
		s.Require().NoError(s.state.ResetStreak(ctx, "u1"))
		n, err := s.state.BumpStreak(ctx, "u1", false)
		s.Require().NoError(err)
		s.Zero(n)
	})
}

func (s *RedisStateSuite) TestKillSwitch() {
	ctx := context.Background()
	sw := policy.NewRedisSwitch(s.redis.Client, slog.New(slog.NewTextHandler(io.Discard, nil)))

	s.False(sw.IsEscalateOnly(ctx))

	s.Require().NoError(sw.Activate(ctx))
	// The read cache may serve the stale inactive value briefly; a second
	// instance with a cold cache sees the shared key immediately.
	fresh := policy.NewRedisSwitch(s.redis.Client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.True(fresh.IsEscalateOnly(ctx))

	s.Require().NoError(fresh.Deactivate(ctx))
	cold := policy.NewRedisSwitch(s.redis.Client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.False(cold.IsEscalateOnly(ctx))
}
