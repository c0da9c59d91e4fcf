// Package agents provides the built-in capability implementations: rules-only
// heuristics over the enriched login event. Each agent scores risk and
// reports the factors behind the score; none of them decides anything.
package agents

import (
	"context"
	"fmt"
	"strconv"

	"riskgate/internal/domain"
)

const DetectionName = "detection"

// Detection weights per signal. Tuned so a single strong signal (Tor, new
// location) lands in the elevated band and combinations cross into high risk.
const (
	weightNewDevice     = 0.25
	weightNewIP         = 0.15
	weightNewLocation   = 0.30
	weightFailedAttempt = 0.10 // per attempt, capped
	weightVPN           = 0.10
	weightTor           = 0.35
	weightLongAbsence   = 0.10

	failedAttemptsCap = 3
	longAbsenceHours  = 720 // 30 days
)

// Detection flags anomalous login signals: unfamiliar device, IP or
// location, failed-attempt velocity, anonymization networks, and long
// absence from the account.
type Detection struct{}

func NewDetection() *Detection { return &Detection{} }

func (d *Detection) Name() string { return DetectionName }

func (d *Detection) Evaluate(_ context.Context, event domain.LoginEvent) (domain.AgentSignal, error) {
	risk := 0.0
	explanation := make(map[string]string)

	if event.NewDevice {
		risk += weightNewDevice
		explanation["new_device"] = "login from a device not previously associated with this account"
	}
	if event.NewIP {
		risk += weightNewIP
		explanation["new_ip"] = "login from a new IP address"
	}
	if event.NewLocation {
		risk += weightNewLocation
		explanation["new_location"] = "login from a new geographic location"
	}
	if event.FailedAttemptsBefore > 0 {
		capped := min(event.FailedAttemptsBefore, failedAttemptsCap)
		risk += weightFailedAttempt * float64(capped)
		explanation["failed_attempts"] = fmt.Sprintf(
			"%d failed attempts preceded this login", event.FailedAttemptsBefore)
	}
	if event.IsVPN {
		risk += weightVPN
		explanation["vpn"] = "connection via VPN or proxy"
	}
	if event.IsTor {
		risk += weightTor
		explanation["tor"] = "connection via Tor exit node"
	}
	if event.HoursSinceLastLogin > longAbsenceHours {
		risk += weightLongAbsence
		explanation["long_absence"] = "login after extended absence, " +
			strconv.Itoa(int(event.HoursSinceLastLogin)) + " hours since last login"
	}

	// Certainty scales with how much evidence backs the score. A score built
	// from several factors is trusted more than the same score from one.
	confidence := 0.60 + 0.10*float64(len(explanation))

	return domain.AgentSignal{
		Risk:        domain.Float(clamp01(risk)),
		Confidence:  domain.Float(clamp01(confidence)),
		Explanation: explanation,
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
