package router

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"riskgate/internal/domain"
)

// =============================================================================
// Router Test Suite
// =============================================================================
// Isolation is the router's contract: one slow, failing, or panicking agent
// must never affect another's signal or block the caller past the deadline.

type RouterSuite struct {
	suite.Suite
	router *Router
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.router = New(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

// fakeCapability scripts a capability's behavior for tests.
type fakeCapability struct {
	name  string
	risk  float64
	delay time.Duration
	err   error
	panic bool
}

func (f *fakeCapability) Name() string { return f.name }

func (f *fakeCapability) Evaluate(ctx context.Context, _ domain.LoginEvent) (domain.AgentSignal, error) {
	if f.panic {
		panic("scripted failure")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return domain.AgentSignal{}, ctx.Err()
		}
	}
	if f.err != nil {
		return domain.AgentSignal{}, f.err
	}
	return domain.AgentSignal{
		Risk:       domain.Float(f.risk),
		Confidence: domain.Float(0.9),
	}, nil
}

func (s *RouterSuite) testEvent() domain.LoginEvent {
	return domain.LoginEvent{EventID: "ev-1", SessionID: "sess-1", UserID: "u1"}
}

func (s *RouterSuite) TestRegister() {
	s.Run("registers distinct capabilities", func() {
		s.NoError(s.router.Register(&fakeCapability{name: "a"}))
		s.NoError(s.router.Register(&fakeCapability{name: "b"}))
		s.Equal([]string{"a", "b"}, s.router.Names())
	})

	s.Run("duplicate name is a startup error", func() {
		s.Error(s.router.Register(&fakeCapability{name: "a"}))
	})

	s.Run("empty name is a startup error", func() {
		s.Error(s.router.Register(&fakeCapability{name: ""}))
	})
}

func (s *RouterSuite) TestRouteCollectsAllSignals() {
	ctx := context.Background()
	s.Require().NoError(s.router.Register(&fakeCapability{name: "a", risk: 0.2}))
	s.Require().NoError(s.router.Register(&fakeCapability{name: "b", risk: 0.7}))

	signals := s.router.Route(ctx, s.testEvent(), time.Second)
	s.Require().Len(signals, 2)

	s.Equal(domain.StatusOK, signals["a"].Status)
	s.InDelta(0.2, *signals["a"].Risk, 1e-9)
	s.Equal(domain.StatusOK, signals["b"].Status)
	s.InDelta(0.7, *signals["b"].Risk, 1e-9)
}

func (s *RouterSuite) TestRouteTimeout() {
	ctx := context.Background()
	s.Require().NoError(s.router.Register(&fakeCapability{name: "fast", risk: 0.3}))
	s.Require().NoError(s.router.Register(&fakeCapability{name: "slow", risk: 0.9, delay: 500 * time.Millisecond}))

	start := time.Now()
	signals := s.router.Route(ctx, s.testEvent(), 50*time.Millisecond)
	elapsed := time.Since(start)

	s.Run("returns at the deadline, not the slowest agent", func() {
		s.Less(elapsed, 300*time.Millisecond)
	})

	s.Run("fast agent's signal is intact", func() {
		s.Equal(domain.StatusOK, signals["fast"].Status)
		s.InDelta(0.3, *signals["fast"].Risk, 1e-9)
	})

	s.Run("slow agent reports timed_out with nil scores", func() {
		s.Equal(domain.StatusTimedOut, signals["slow"].Status)
		s.Nil(signals["slow"].Risk)
		s.Nil(signals["slow"].Confidence)
		s.False(signals["slow"].Present())
	})
}

func (s *RouterSuite) TestRouteFailures() {
	ctx := context.Background()
	s.Require().NoError(s.router.Register(&fakeCapability{name: "ok", risk: 0.1}))
	s.Require().NoError(s.router.Register(&fakeCapability{name: "broken", err: errors.New("upstream down")}))
	s.Require().NoError(s.router.Register(&fakeCapability{name: "crashes", panic: true}))

	signals := s.router.Route(ctx, s.testEvent(), time.Second)
	s.Require().Len(signals, 3)

	s.Run("erroring agent reports failed with the error captured", func() {
		s.Equal(domain.StatusFailed, signals["broken"].Status)
		s.Contains(signals["broken"].Err, "upstream down")
		s.Nil(signals["broken"].Risk)
	})

	s.Run("panicking agent reports failed instead of crashing the router", func() {
		s.Equal(domain.StatusFailed, signals["crashes"].Status)
		s.Contains(signals["crashes"].Err, "panic")
	})

	s.Run("healthy agent is unaffected", func() {
		s.Equal(domain.StatusOK, signals["ok"].Status)
	})
}

func (s *RouterSuite) TestRouteEmptyTable() {
	signals := s.router.Route(context.Background(), s.testEvent(), time.Second)
	s.Empty(signals)
}

func (s *RouterSuite) TestRouteCancelledCaller() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Require().NoError(s.router.Register(&fakeCapability{name: "slow", delay: time.Second}))

	signals := s.router.Route(ctx, s.testEvent(), time.Second)
	s.Equal(domain.StatusTimedOut, signals["slow"].Status)
}
