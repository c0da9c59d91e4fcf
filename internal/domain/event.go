package domain

import (
	"time"

	"riskgate/pkg/sentinel"
)

// LoginEvent is the unit of work flowing through the decision pipeline.
// Immutable once ingested; the pipeline never persists it directly, only
// the Decision derived from it.
type LoginEvent struct {
	EventID   string    `json:"event_id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`

	// Enrichment produced by the feature pipeline upstream of this core.
	// Built-in agents consume these; unknown extras ride in Context.
	NewDevice            bool    `json:"new_device,omitempty"`
	NewIP                bool    `json:"new_ip,omitempty"`
	NewLocation          bool    `json:"new_location,omitempty"`
	FailedAttemptsBefore int     `json:"failed_attempts_before,omitempty"`
	IsVPN                bool    `json:"is_vpn,omitempty"`
	IsTor                bool    `json:"is_tor,omitempty"`
	UserAgent            string  `json:"user_agent,omitempty"`
	Country              string  `json:"country,omitempty"`
	LoginHour            int     `json:"login_hour,omitempty"`
	TypicalHourStart     int     `json:"typical_hour_start,omitempty"`
	TypicalHourEnd       int     `json:"typical_hour_end,omitempty"`
	AccountAgeDays       int     `json:"account_age_days,omitempty"`
	HoursSinceLastLogin  float64 `json:"hours_since_last_login,omitempty"`

	Context map[string]string `json:"context,omitempty"`
}

// Validate checks the identifiers the pipeline depends on. Anything else is
// agent territory and missing values there degrade signals, not the event.
func (e LoginEvent) Validate() error {
	if e.EventID == "" {
		return sentinel.ErrMissingEventID
	}
	if e.SessionID == "" {
		return sentinel.ErrMissingSessionID
	}
	if e.UserID == "" {
		return sentinel.ErrMissingUserID
	}
	return nil
}
