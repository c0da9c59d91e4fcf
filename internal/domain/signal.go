package domain

// SignalStatus describes how a capability call concluded.
type SignalStatus string

const (
	StatusOK       SignalStatus = "ok"
	StatusTimedOut SignalStatus = "timed_out"
	StatusFailed   SignalStatus = "failed"
)

// AgentSignal is one capability's assessment of a login event.
//
// Risk and Confidence are pointers so that "unknown" stays distinguishable
// from "zero risk": a timed-out or failed agent leaves them nil, never 0.
type AgentSignal struct {
	AgentName   string            `json:"agent_name"`
	Risk        *float64          `json:"risk,omitempty"`
	Confidence  *float64          `json:"confidence,omitempty"`
	Explanation map[string]string `json:"explanation,omitempty"`
	Status      SignalStatus      `json:"status"`
	Err         string            `json:"error,omitempty"`
}

// Present reports whether the signal carries a usable risk value.
func (s AgentSignal) Present() bool {
	return s.Status == StatusOK && s.Risk != nil
}

// AggregatedSignal is the combined view across all agents for one event.
// Derived once by the flow and never mutated afterwards.
type AggregatedSignal struct {
	PerAgent            map[string]AgentSignal `json:"per_agent"`
	CompositeRisk       float64                `json:"composite_risk"`
	CompositeConfidence float64                `json:"composite_confidence"`
	Disagreement        float64                `json:"disagreement"`
	PresentAgents       int                    `json:"present_agents"`
}

// Float returns a pointer to v; helper for building signals.
func Float(v float64) *float64 { return &v }
