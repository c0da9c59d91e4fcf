package flow

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"riskgate/internal/audit"
	"riskgate/internal/domain"
	"riskgate/internal/policy"
	"riskgate/pkg/sentinel"
)

// =============================================================================
// Flow Test Suite
// =============================================================================
// Process is the one path every decision takes, so these tests cover the
// whole pipeline against a scripted router and a real policy engine: happy
// path, degraded signals, and the fail-closed audit contract.

type FlowSuite struct {
	suite.Suite
	router *scriptedRouter
	audit  *recordingAppender
	state  *policy.InMemoryStateStore
	toggle *policy.Switch
}

func TestFlowSuite(t *testing.T) {
	suite.Run(t, new(FlowSuite))
}

func (s *FlowSuite) SetupTest() {
	s.router = &scriptedRouter{}
	s.audit = &recordingAppender{}
	s.state = policy.NewInMemoryStateStore()
	s.toggle = policy.NewSwitch()
}

func (s *FlowSuite) newFlow(mutate func(*policy.Rules)) *Flow {
	rules := policy.DefaultRules()
	if mutate != nil {
		mutate(&rules)
	}
	engine, err := policy.NewEngine(rules, s.state, s.toggle,
		policy.WithEngineLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.Require().NoError(err)
	return New(s.router, engine, s.audit,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAgentTimeout(100*time.Millisecond),
	)
}

type scriptedRouter struct {
	signals map[string]domain.AgentSignal
}

func (r *scriptedRouter) Route(_ context.Context, _ domain.LoginEvent, _ time.Duration) map[string]domain.AgentSignal {
	return r.signals
}

type recordingAppender struct {
	mu        sync.Mutex
	decisions []domain.Decision
	failNext  int
}

func (a *recordingAppender) Append(_ context.Context, d domain.Decision) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failNext > 0 {
		a.failNext--
		return sentinel.ErrQueueFull
	}
	a.decisions = append(a.decisions, d)
	return nil
}

func (a *recordingAppender) appended() []domain.Decision {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.Decision(nil), a.decisions...)
}

func ok(risk float64) domain.AgentSignal {
	return domain.AgentSignal{
		Status:      domain.StatusOK,
		Risk:        domain.Float(risk),
		Confidence:  domain.Float(0.9),
		Explanation: map[string]string{"factor": "scripted factor"},
	}
}

func testEvent() domain.LoginEvent {
	return domain.LoginEvent{EventID: "ev-1", SessionID: "sess-1", UserID: "u1", Timestamp: time.Now()}
}

func (s *FlowSuite) TestValidation() {
	flow := s.newFlow(nil)

	d, err := flow.Process(context.Background(), domain.LoginEvent{SessionID: "s", UserID: "u"})
	s.ErrorIs(err, sentinel.ErrMissingEventID)

	s.Run("the returned decision still carries an outcome", func() {
		s.Equal(domain.OutcomeRequestFailed, d.Outcome)
		s.Contains(d.ConstraintsApplied, ConstraintInvalidEvent)
		s.Contains(d.Rationale[0], sentinel.ErrMissingEventID.Error())
	})

	s.Run("invalid events are never routed or audited", func() {
		s.Empty(s.audit.appended())
	})
}

func (s *FlowSuite) TestAgreeingLowRiskAllows() {
	s.router.signals = map[string]domain.AgentSignal{
		"detection": ok(0.05),
		"behavior":  ok(0.10),
		"network":   ok(0.08),
	}
	flow := s.newFlow(nil)

	d, err := flow.Process(context.Background(), testEvent())
	s.Require().NoError(err)

	s.Equal(domain.OutcomeAllow, d.Outcome)
	s.InDelta(0.05, d.Disagreement, 1e-9)
	s.Contains(d.Rationale[len(d.Rationale)-1], "scripted factor")

	s.Run("decision is audited exactly once", func() {
		appended := s.audit.appended()
		s.Require().Len(appended, 1)
		s.Equal(d.Outcome, appended[0].Outcome)
		s.Equal("ev-1", appended[0].EventID)
	})
}

func (s *FlowSuite) TestDisagreementEscalates() {
	s.router.signals = map[string]domain.AgentSignal{
		"detection": ok(0.05),
		"network":   ok(0.90),
	}
	flow := s.newFlow(nil)

	d, err := flow.Process(context.Background(), testEvent())
	s.Require().NoError(err)
	s.Equal(domain.OutcomeEscalate, d.Outcome)
	s.Contains(d.ConstraintsApplied, policy.ConstraintHighDisagreement)
}

func (s *FlowSuite) TestAbsentAgentsDepressConfidence() {
	// One present low-risk signal, two absent: composite risk stays low but
	// confidence drops below the autonomy bar.
	s.router.signals = map[string]domain.AgentSignal{
		"detection": ok(0.05),
		"behavior":  {Status: domain.StatusTimedOut},
		"network":   {Status: domain.StatusFailed},
	}
	flow := s.newFlow(nil)

	d, err := flow.Process(context.Background(), testEvent())
	s.Require().NoError(err)
	s.NotEqual(domain.OutcomeAllow, d.Outcome)
	s.InDelta(0.05, d.Risk, 1e-9)
}

func (s *FlowSuite) TestCompositeRisk() {
	s.router.signals = map[string]domain.AgentSignal{
		"detection": ok(0.2),
		"network":   ok(0.4),
	}

	s.Run("uniform weighted mean", func() {
		flow := s.newFlow(nil)
		d, err := flow.Process(context.Background(), testEvent())
		s.Require().NoError(err)
		s.InDelta(0.3, d.Risk, 1e-9)
	})

	s.Run("explicit weights shift the mean", func() {
		flow := s.newFlow(func(r *policy.Rules) {
			r.AgentWeights = map[string]float64{"detection": 3}
		})
		d, err := flow.Process(context.Background(), testEvent())
		s.Require().NoError(err)
		s.InDelta(0.25, d.Risk, 1e-9) // (0.2*3 + 0.4*1) / 4
	})

	s.Run("max combinator takes the worst signal", func() {
		flow := s.newFlow(func(r *policy.Rules) {
			r.Combinator = policy.CombinatorMax
		})
		d, err := flow.Process(context.Background(), testEvent())
		s.Require().NoError(err)
		s.InDelta(0.4, d.Risk, 1e-9)
	})
}

// TestDecisionsChainThroughTrail drives the full write path end to end: a
// real trail with its background writer persists what Process concludes, and
// the stored records form one verifiable chain.
func (s *FlowSuite) TestDecisionsChainThroughTrail() {
	ctx := context.Background()
	store := audit.NewInMemoryStore()
	trail, err := audit.NewTrail(store, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), nil,
		audit.WithBatchSize(1),
		audit.WithFlushInterval(10*time.Millisecond),
	)
	s.Require().NoError(err)
	s.Require().NoError(trail.Writer.Start(ctx))

	engine, err := policy.NewEngine(policy.DefaultRules(), s.state, s.toggle,
		policy.WithEngineLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.Require().NoError(err)
	flow := New(s.router, engine, trail.Logger,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAgentTimeout(100*time.Millisecond),
	)

	s.router.signals = map[string]domain.AgentSignal{
		"detection": ok(0.05),
		"behavior":  ok(0.10),
	}
	first, err := flow.Process(ctx, domain.LoginEvent{EventID: "ev-allow", SessionID: "sess-1", UserID: "u1", Timestamp: time.Now()})
	s.Require().NoError(err)
	s.Require().Equal(domain.OutcomeAllow, first.Outcome)

	s.router.signals = map[string]domain.AgentSignal{
		"detection": ok(0.05),
		"behavior":  ok(0.90),
	}
	second, err := flow.Process(ctx, domain.LoginEvent{EventID: "ev-escalate", SessionID: "sess-2", UserID: "u1", Timestamp: time.Now()})
	s.Require().NoError(err)
	s.Require().Equal(domain.OutcomeEscalate, second.Outcome)

	s.Require().NoError(trail.Writer.Close(ctx))

	records, err := store.Read(ctx, 0, ^uint64(0))
	s.Require().NoError(err)
	s.Require().Len(records, 2)

	s.Run("the first record anchors at the chain seed", func() {
		s.Equal(uint64(0), records[0].SequenceNo)
		s.Equal(audit.ChainSeed, records[0].PreviousHash)
		s.Equal("ev-allow", records[0].Payload.EventID)
		s.Equal(domain.OutcomeAllow, records[0].Payload.Outcome)
	})

	s.Run("the second record chains from the first", func() {
		s.Equal(uint64(1), records[1].SequenceNo)
		s.Equal(records[0].RecordHash, records[1].PreviousHash)
		s.Equal("ev-escalate", records[1].Payload.EventID)
		s.Equal(domain.OutcomeEscalate, records[1].Payload.Outcome)
	})

	s.Run("the stored chain verifies intact", func() {
		s.NoError(trail.Verify(ctx))
		s.False(trail.Suspect())
	})
}

func (s *FlowSuite) TestAuditFailClosed() {
	s.router.signals = map[string]domain.AgentSignal{
		"detection": ok(0.05),
		"behavior":  ok(0.10),
	}

	s.Run("queue full voids the decision", func() {
		s.audit.failNext = 1
		flow := s.newFlow(nil)

		d, err := flow.Process(context.Background(), testEvent())
		s.Require().NoError(err)
		s.Equal(domain.OutcomeRequestFailed, d.Outcome)
		s.Contains(d.ConstraintsApplied, ConstraintAuditUnavailable)

		s.Run("the failure record is offered to the trail", func() {
			appended := s.audit.appended()
			s.Require().Len(appended, 1)
			s.Equal(domain.OutcomeRequestFailed, appended[0].Outcome)
		})
	})

	s.Run("persistent queue full still returns REQUEST_FAILED", func() {
		s.audit = &recordingAppender{failNext: 2}
		flow := s.newFlow(nil)

		d, err := flow.Process(context.Background(), testEvent())
		s.Require().NoError(err)
		s.Equal(domain.OutcomeRequestFailed, d.Outcome)
		s.Empty(s.audit.appended())
	})
}
