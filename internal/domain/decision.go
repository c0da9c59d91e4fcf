package domain

import "time"

// Outcome is the caller-visible result of a decision. These four values are
// the entire error surface of the pipeline; no undifferentiated errors cross
// the boundary.
type Outcome string

const (
	OutcomeAllow           Outcome = "ALLOW"
	OutcomeDenyHumanReview Outcome = "DENY_HUMAN_REVIEW"
	OutcomeEscalate        Outcome = "ESCALATE"
	OutcomeRequestFailed   Outcome = "REQUEST_FAILED"
)

// Valid reports whether o is one of the four caller-visible outcomes.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeAllow, OutcomeDenyHumanReview, OutcomeEscalate, OutcomeRequestFailed:
		return true
	}
	return false
}

// Decision is the immutable record of one evaluation. Created once by the
// flow, consumed by the audit logger, never mutated.
type Decision struct {
	EventID            string    `json:"event_id"`
	SessionID          string    `json:"session_id"`
	UserID             string    `json:"user_id"`
	Outcome            Outcome   `json:"outcome"`
	Confidence         float64   `json:"confidence"`
	Risk               float64   `json:"risk"`
	Disagreement       float64   `json:"disagreement"`
	ConstraintsApplied []string  `json:"constraints_applied,omitempty"`
	Rationale          []string  `json:"rationale,omitempty"`
	DecidedAt          time.Time `json:"decided_at"`
}
