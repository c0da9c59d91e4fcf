package policy

import (
	"fmt"
	"slices"
)

// RiskCombinator selects how present agents' risk scores fold into the
// composite. Exposed as configuration rather than hardcoded.
type RiskCombinator string

const (
	CombinatorWeightedMean RiskCombinator = "weighted_mean"
	CombinatorMax          RiskCombinator = "max"
)

// Rules is the static policy surface. Loaded once at startup, validated, and
// never mutated afterwards; emergency behavior changes go through the control
// channel, not through this struct.
type Rules struct {
	ConfidenceAllow          float64 // minimum composite confidence for autonomous action
	ConfidenceEscalate       float64 // below this, mandatory escalation
	DisagreementThreshold    float64 // above this, mandatory escalation
	HighRiskMin              float64 // composite risk at or above this counts toward the streak
	MaxActionsPerUserPerDay  int
	ConsecutiveHighRiskLimit int

	// CriticalAgents lists capabilities whose failure or timeout forces
	// escalation regardless of the remaining signals.
	CriticalAgents []string

	// PermanentBlockAllowed stays false: autonomous action is constrained to
	// temporary measures at the policy layer, independent of confidence.
	PermanentBlockAllowed bool

	Combinator RiskCombinator

	// AgentWeights feed the weighted-mean combinator; agents without an entry
	// weigh 1. Ignored by the max combinator.
	AgentWeights map[string]float64
}

// DefaultRules returns the production defaults.
func DefaultRules() Rules {
	return Rules{
		ConfidenceAllow:          0.80,
		ConfidenceEscalate:       0.50,
		DisagreementThreshold:    0.30,
		HighRiskMin:              0.70,
		MaxActionsPerUserPerDay:  5,
		ConsecutiveHighRiskLimit: 3,
		PermanentBlockAllowed:    false,
		Combinator:               CombinatorWeightedMean,
	}
}

// Validate enforces the load-time invariants: thresholds within [0,1],
// counts non-negative, escalate threshold below allow threshold.
func (r Rules) Validate() error {
	for name, v := range map[string]float64{
		"confidence_allow":       r.ConfidenceAllow,
		"confidence_escalate":    r.ConfidenceEscalate,
		"disagreement_threshold": r.DisagreementThreshold,
		"high_risk_min":          r.HighRiskMin,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("rule %s must be within [0,1], got %v", name, v)
		}
	}
	if r.ConfidenceEscalate > r.ConfidenceAllow {
		return fmt.Errorf("confidence_escalate (%v) must not exceed confidence_allow (%v)",
			r.ConfidenceEscalate, r.ConfidenceAllow)
	}
	if r.MaxActionsPerUserPerDay < 0 {
		return fmt.Errorf("max_actions_per_user_per_day must be non-negative, got %d", r.MaxActionsPerUserPerDay)
	}
	if r.ConsecutiveHighRiskLimit < 0 {
		return fmt.Errorf("consecutive_high_risk_limit must be non-negative, got %d", r.ConsecutiveHighRiskLimit)
	}
	switch r.Combinator {
	case CombinatorWeightedMean, CombinatorMax:
	default:
		return fmt.Errorf("unknown risk combinator %q", r.Combinator)
	}
	for agent, weight := range r.AgentWeights {
		if weight < 0 {
			return fmt.Errorf("agent weight for %q must be non-negative, got %v", agent, weight)
		}
	}
	return nil
}

// CriticalAgent reports whether name is flagged as decision-critical.
func (r Rules) CriticalAgent(name string) bool {
	return slices.Contains(r.CriticalAgents, name)
}
