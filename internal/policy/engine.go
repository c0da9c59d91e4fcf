package policy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"riskgate/internal/domain"
)

// Constraint labels recorded on decisions when a policy gate fires.
const (
	ConstraintEscalateOnly       = "escalate_only_mode"
	ConstraintCriticalAgentDown  = "critical_agent_unavailable"
	ConstraintHighDisagreement   = "high_disagreement"
	ConstraintStreakLimit        = "consecutive_high_risk_limit"
	ConstraintDailyQuota         = "daily_action_quota"
	ConstraintLowConfidence      = "confidence_below_floor"
	ConstraintNoPermanentActions = "no_permanent_actions"
)

// Engine applies the decision fork: static rules plus per-user rolling state
// over an aggregated signal. It holds no signal-derivation logic; everything
// it needs arrives in the AggregatedSignal.
type Engine struct {
	rules     Rules
	state     UserStateStore
	emergency EmergencyControl
	logger    *slog.Logger
	now       func() time.Time
}

type EngineOption func(*Engine)

func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(rules Rules, state UserStateStore, emergency EmergencyControl, opts ...EngineOption) (*Engine, error) {
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy rules: %w", err)
	}
	e := &Engine{
		rules:     rules,
		state:     state,
		emergency: emergency,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Rules returns the active static rules.
func (e *Engine) Rules() Rules { return e.rules }

// Decide runs the fork for one event. Gates are evaluated in strict order;
// the first gate that fires determines the outcome and no later gate can
// override it. State errors surface to the caller, which fails the request
// closed rather than guessing.
func (e *Engine) Decide(ctx context.Context, event domain.LoginEvent, sig domain.AggregatedSignal) (domain.Decision, error) {
	d := domain.Decision{
		EventID:      event.EventID,
		SessionID:    event.SessionID,
		UserID:       event.UserID,
		Confidence:   sig.CompositeConfidence,
		Risk:         sig.CompositeRisk,
		Disagreement: sig.Disagreement,
		DecidedAt:    e.now().UTC(),
	}
	if !e.rules.PermanentBlockAllowed {
		d.ConstraintsApplied = append(d.ConstraintsApplied, ConstraintNoPermanentActions)
	}

	// Record this event's contribution to the high-risk streak before the
	// fork so the streak gate sees a count that includes the current event.
	highRisk := sig.CompositeRisk >= e.rules.HighRiskMin
	streak, err := e.state.BumpStreak(ctx, event.UserID, highRisk)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("update high-risk streak: %w", err)
	}

	outcome, gateErr := e.fork(ctx, event, sig, highRisk, streak, &d)
	if gateErr != nil {
		return domain.Decision{}, gateErr
	}
	d.Outcome = outcome

	// A concluded non-escalate outcome clears the streak; an escalation
	// leaves it standing for the next event.
	if outcome != domain.OutcomeEscalate {
		if err := e.state.ResetStreak(ctx, event.UserID); err != nil {
			e.logger.Warn("reset high-risk streak failed", "user_id", event.UserID, "error", err)
		}
	}
	return d, nil
}

func (e *Engine) fork(ctx context.Context, event domain.LoginEvent, sig domain.AggregatedSignal, highRisk bool, streak int, d *domain.Decision) (domain.Outcome, error) {
	// Gate: emergency escalate-only mode.
	if e.emergency != nil && e.emergency.IsEscalateOnly(ctx) {
		d.ConstraintsApplied = append(d.ConstraintsApplied, ConstraintEscalateOnly)
		d.Rationale = append(d.Rationale, "emergency escalate-only mode is active")
		return domain.OutcomeEscalate, nil
	}

	// Gate: a decision-critical capability failed or timed out.
	for name, s := range sig.PerAgent {
		if s.Status != domain.StatusOK && e.rules.CriticalAgent(name) {
			d.ConstraintsApplied = append(d.ConstraintsApplied, ConstraintCriticalAgentDown)
			d.Rationale = append(d.Rationale,
				fmt.Sprintf("critical capability %s reported %s", name, s.Status))
			return domain.OutcomeEscalate, nil
		}
	}

	// Gate: agents disagree too much to trust any composite.
	if sig.Disagreement > e.rules.DisagreementThreshold {
		d.ConstraintsApplied = append(d.ConstraintsApplied, ConstraintHighDisagreement)
		d.Rationale = append(d.Rationale,
			fmt.Sprintf("signal disagreement %.2f exceeds threshold %.2f",
				sig.Disagreement, e.rules.DisagreementThreshold))
		return domain.OutcomeEscalate, nil
	}

	// Gate: too many consecutive high-risk events for this user. Requires the
	// current event to be high-risk itself, so a user who cools down can earn
	// a non-escalate outcome and clear the streak.
	if highRisk && e.rules.ConsecutiveHighRiskLimit > 0 && streak >= e.rules.ConsecutiveHighRiskLimit {
		d.ConstraintsApplied = append(d.ConstraintsApplied, ConstraintStreakLimit)
		d.Rationale = append(d.Rationale,
			fmt.Sprintf("%d consecutive high-risk events reached the limit of %d",
				streak, e.rules.ConsecutiveHighRiskLimit))
		return domain.OutcomeEscalate, nil
	}

	// Gate: confidence clears the autonomy bar. The quota claim is taken
	// atomically; if the claim pushes the count over the daily cap the claim
	// is released and the decision downgrades, so two concurrent decisions
	// cannot both consume the last slot.
	if sig.CompositeConfidence >= e.rules.ConfidenceAllow {
		day := DayKey(e.now())
		count, err := e.state.IncrementActions(ctx, event.UserID, day)
		if err != nil {
			return "", fmt.Errorf("claim daily action: %w", err)
		}
		if count <= e.rules.MaxActionsPerUserPerDay {
			d.Rationale = append(d.Rationale,
				fmt.Sprintf("confidence %.2f meets autonomous threshold %.2f with %d of %d daily actions used",
					sig.CompositeConfidence, e.rules.ConfidenceAllow, count, e.rules.MaxActionsPerUserPerDay))
			return domain.OutcomeAllow, nil
		}
		if err := e.state.DecrementActions(ctx, event.UserID, day); err != nil {
			e.logger.Warn("release action claim failed", "user_id", event.UserID, "error", err)
		}
		d.ConstraintsApplied = append(d.ConstraintsApplied, ConstraintDailyQuota)
		d.Rationale = append(d.Rationale,
			fmt.Sprintf("daily quota of %d autonomous actions exhausted", e.rules.MaxActionsPerUserPerDay))
		return domain.OutcomeEscalate, nil
	}

	// Gate: confidence below the floor mandates escalation.
	if sig.CompositeConfidence < e.rules.ConfidenceEscalate {
		d.ConstraintsApplied = append(d.ConstraintsApplied, ConstraintLowConfidence)
		d.Rationale = append(d.Rationale,
			fmt.Sprintf("confidence %.2f is below the escalation floor %.2f",
				sig.CompositeConfidence, e.rules.ConfidenceEscalate))
		return domain.OutcomeEscalate, nil
	}

	// Middle band: confident enough to conclude, not enough to act alone.
	d.Rationale = append(d.Rationale,
		fmt.Sprintf("confidence %.2f sits between the escalation floor %.2f and the autonomy threshold %.2f",
			sig.CompositeConfidence, e.rules.ConfidenceEscalate, e.rules.ConfidenceAllow))
	return domain.OutcomeDenyHumanReview, nil
}
