// Package flow runs the decision pipeline for one login event: route to
// agents, aggregate signals, score confidence, apply policy, audit. The
// pipeline fails closed: if the decision cannot be recorded, it does not
// stand.
package flow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"riskgate/internal/agents"
	"riskgate/internal/domain"
	"riskgate/internal/policy"
	"riskgate/pkg/sentinel"
)

const (
	// ConstraintAuditUnavailable marks decisions voided because the audit
	// trail could not accept them; ConstraintStateUnavailable marks ones
	// voided by a policy state store failure; ConstraintInvalidEvent marks
	// events rejected before routing for missing identifiers.
	ConstraintAuditUnavailable = "audit_unavailable"
	ConstraintStateUnavailable = "policy_state_unavailable"
	ConstraintInvalidEvent     = "invalid_event"

	DefaultAgentTimeout = 2 * time.Second
)

// SignalRouter fans an event out to capability agents.
type SignalRouter interface {
	Route(ctx context.Context, event domain.LoginEvent, timeout time.Duration) map[string]domain.AgentSignal
}

// DecisionEngine applies policy over an aggregated signal.
type DecisionEngine interface {
	Decide(ctx context.Context, event domain.LoginEvent, sig domain.AggregatedSignal) (domain.Decision, error)
	Rules() policy.Rules
}

// AuditAppender accepts a decision for durable recording. sentinel.ErrQueueFull
// means the trail cannot keep up and the caller must fail closed.
type AuditAppender interface {
	Append(ctx context.Context, d domain.Decision) error
}

// Flow orchestrates one decision per Process call. Stateless between calls;
// all cross-event state lives behind the engine's state store.
type Flow struct {
	router       SignalRouter
	engine       DecisionEngine
	audit        AuditAppender
	agentTimeout time.Duration
	logger       *slog.Logger
	metrics      *Metrics
}

type Option func(*Flow)

func WithLogger(l *slog.Logger) Option {
	return func(f *Flow) { f.logger = l }
}

func WithMetrics(m *Metrics) Option {
	return func(f *Flow) { f.metrics = m }
}

func WithAgentTimeout(d time.Duration) Option {
	return func(f *Flow) { f.agentTimeout = d }
}

func New(router SignalRouter, engine DecisionEngine, audit AuditAppender, opts ...Option) *Flow {
	f := &Flow{
		router:       router,
		engine:       engine,
		audit:        audit,
		agentTimeout: DefaultAgentTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Process takes an event from ingestion to audited decision. Every return
// carries one of the four outcomes; an event failing validation yields a
// REQUEST_FAILED decision together with the sentinel error naming the missing
// identifier, and is never routed or audited. Everything downstream resolves
// to a Decision alone, degrading to REQUEST_FAILED when the pipeline cannot
// conclude or record safely.
func (f *Flow) Process(ctx context.Context, event domain.LoginEvent) (domain.Decision, error) {
	started := time.Now()

	if err := event.Validate(); err != nil {
		return f.failedDecision(event, domain.AggregatedSignal{}, ConstraintInvalidEvent, err.Error()), err
	}

	signals := f.router.Route(ctx, event, f.agentTimeout)
	sig := f.aggregate(signals)

	decision, err := f.engine.Decide(ctx, event, sig)
	if err != nil {
		f.logger.Error("policy evaluation failed", "event_id", event.EventID, "error", err)
		decision = f.failedDecision(event, sig, ConstraintStateUnavailable, "policy state unavailable")
	}

	if decision.Outcome != domain.OutcomeRequestFailed {
		decision.Rationale = append(decision.Rationale, agents.Explain(sig)...)
	}

	if err := f.audit.Append(ctx, decision); err != nil {
		if !errors.Is(err, sentinel.ErrQueueFull) {
			f.logger.Error("audit append failed", "event_id", event.EventID, "error", err)
		}
		// The decision was never recorded, so it does not stand. The
		// replacement is offered to the trail too, best effort; if the queue
		// is still full the failure itself is visible in queue metrics.
		decision = f.failedDecision(event, sig, ConstraintAuditUnavailable, "audit trail unavailable")
		if err := f.audit.Append(ctx, decision); err != nil {
			f.logger.Warn("audit append of failure record also failed",
				"event_id", event.EventID, "error", err)
		}
	}

	f.metrics.observe(string(decision.Outcome), time.Since(started))
	f.logger.Info("decision concluded",
		"event_id", event.EventID,
		"user_id", event.UserID,
		"outcome", decision.Outcome,
		"risk", decision.Risk,
		"confidence", decision.Confidence,
	)
	return decision, nil
}

// aggregate folds per-agent signals into the composite view. Only present
// signals contribute to risk; absent agents still depress confidence through
// the scorer's penalties.
func (f *Flow) aggregate(signals map[string]domain.AgentSignal) domain.AggregatedSignal {
	rules := f.engine.Rules()

	present := 0
	for _, s := range signals {
		if s.Present() {
			present++
		}
	}

	disagreement := agents.Disagreement(signals)
	return domain.AggregatedSignal{
		PerAgent:            signals,
		CompositeRisk:       f.compositeRisk(signals, rules),
		CompositeConfidence: agents.ScoreConfidence(signals, disagreement),
		Disagreement:        disagreement,
		PresentAgents:       present,
	}
}

func (f *Flow) compositeRisk(signals map[string]domain.AgentSignal, rules policy.Rules) float64 {
	switch rules.Combinator {
	case policy.CombinatorMax:
		maxRisk := 0.0
		for _, s := range signals {
			if s.Present() && *s.Risk > maxRisk {
				maxRisk = *s.Risk
			}
		}
		return maxRisk
	default: // weighted mean
		sum, weightSum := 0.0, 0.0
		for name, s := range signals {
			if !s.Present() {
				continue
			}
			weight := 1.0
			if w, ok := rules.AgentWeights[name]; ok {
				weight = w
			}
			sum += *s.Risk * weight
			weightSum += weight
		}
		if weightSum == 0 {
			return 0
		}
		return sum / weightSum
	}
}

func (f *Flow) failedDecision(event domain.LoginEvent, sig domain.AggregatedSignal, constraint, reason string) domain.Decision {
	return domain.Decision{
		EventID:            event.EventID,
		SessionID:          event.SessionID,
		UserID:             event.UserID,
		Outcome:            domain.OutcomeRequestFailed,
		Confidence:         sig.CompositeConfidence,
		Risk:               sig.CompositeRisk,
		Disagreement:       sig.Disagreement,
		ConstraintsApplied: []string{constraint},
		Rationale:          []string{"request failed closed: " + reason},
		DecidedAt:          time.Now().UTC(),
	}
}
