package agents

import (
	"context"

	"riskgate/internal/domain"
)

const BehaviorName = "behavior"

// Behavior deviation penalties. The agent answers "does this look like the
// same human", starting from a perfect match and subtracting for each
// departure from the user's established pattern.
const (
	penaltyOffHours    = 0.30
	penaltyYoungAcct   = 0.25
	penaltyStaleReturn = 0.15
	penaltyFailedRun   = 0.20

	youngAccountDays = 7
	staleReturnHours = 336 // 14 days
)

// Behavior compares the event against the user's historical pattern: typical
// login hours, account maturity, and return cadence. It reports risk as the
// inverse of the behavioral match.
type Behavior struct{}

func NewBehavior() *Behavior { return &Behavior{} }

func (b *Behavior) Name() string { return BehaviorName }

func (b *Behavior) Evaluate(_ context.Context, event domain.LoginEvent) (domain.AgentSignal, error) {
	match := 1.0
	explanation := make(map[string]string)

	if !withinTypicalHours(event) {
		match -= penaltyOffHours
		explanation["off_hours"] = "login occurred outside the user's typical hours"
	}
	if event.AccountAgeDays > 0 && event.AccountAgeDays < youngAccountDays {
		match -= penaltyYoungAcct
		explanation["young_account"] = "account has little history to compare against"
	}
	if event.HoursSinceLastLogin > staleReturnHours {
		match -= penaltyStaleReturn
		explanation["stale_return"] = "login frequency differs from the user's typical pattern"
	}
	if !event.Success && event.FailedAttemptsBefore >= failedAttemptsCap {
		match -= penaltyFailedRun
		explanation["failed_run"] = "repeated failures deviate from the user's normal sessions"
	}

	match = clamp01(match)

	// Little history means the match is weakly grounded either way.
	confidence := 0.85
	if event.AccountAgeDays > 0 && event.AccountAgeDays < youngAccountDays {
		confidence = 0.55
	}

	return domain.AgentSignal{
		Risk:        domain.Float(clamp01(1.0 - match)),
		Confidence:  domain.Float(confidence),
		Explanation: explanation,
	}, nil
}

// withinTypicalHours handles windows that wrap midnight, e.g. 22 to 6.
func withinTypicalHours(event domain.LoginEvent) bool {
	start, end := event.TypicalHourStart, event.TypicalHourEnd
	if start == 0 && end == 0 {
		return true // no profile, nothing to deviate from
	}
	hour := event.LoginHour
	if start <= end {
		return hour >= start && hour <= end
	}
	return hour >= start || hour <= end
}
