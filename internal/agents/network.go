package agents

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mssola/useragent"

	"riskgate/internal/domain"
)

const NetworkName = "network"

// Network weights. Anonymization and shared infrastructure point at
// coordinated access; a scripted client is the strongest single signal.
const (
	weightSharedIPPerAccount     = 0.08
	weightSharedDevicePerAccount = 0.12
	weightNetworkVPN             = 0.10
	weightNetworkTor             = 0.25
	weightBotClient              = 0.30
	weightNoUserAgent            = 0.10

	maxSharedAccounts = 5
)

// Context keys the feature pipeline uses for shared-infrastructure counts.
const (
	ctxIPSharedAccounts     = "ip_shared_accounts"
	ctxDeviceSharedAccounts = "device_shared_accounts"
)

// Network surfaces relational and client-level risk: shared IPs and devices
// across accounts, anonymization networks, and non-browser clients identified
// from the user agent string. Evidence only, no verdicts.
type Network struct{}

func NewNetwork() *Network { return &Network{} }

func (n *Network) Name() string { return NetworkName }

func (n *Network) Evaluate(_ context.Context, event domain.LoginEvent) (domain.AgentSignal, error) {
	risk := 0.0
	explanation := make(map[string]string)

	if shared := contextCount(event, ctxIPSharedAccounts); shared > 1 {
		others := min(shared-1, maxSharedAccounts)
		risk += weightSharedIPPerAccount * float64(others)
		explanation["shared_ip"] = fmt.Sprintf("IP shared with %d other accounts", shared-1)
	}
	if shared := contextCount(event, ctxDeviceSharedAccounts); shared > 1 {
		others := min(shared-1, maxSharedAccounts)
		risk += weightSharedDevicePerAccount * float64(others)
		explanation["shared_device"] = fmt.Sprintf("device seen on %d other accounts", shared-1)
	}
	if event.IsVPN {
		risk += weightNetworkVPN
		explanation["vpn"] = "session via VPN or proxy"
	}
	if event.IsTor {
		risk += weightNetworkTor
		explanation["tor"] = "session via Tor network"
	}

	switch {
	case event.UserAgent == "":
		risk += weightNoUserAgent
		explanation["no_user_agent"] = "client sent no user agent"
	default:
		ua := useragent.New(event.UserAgent)
		if ua.Bot() {
			risk += weightBotClient
			explanation["bot_client"] = "user agent identifies as an automated client"
		} else if name, _ := ua.Browser(); name == "" {
			risk += weightNoUserAgent
			explanation["unknown_client"] = "user agent does not match a known browser"
		}
	}

	// Shared-infrastructure counts come from upstream enrichment; without
	// them the agent only sees the session itself.
	confidence := 0.80
	if event.Context[ctxIPSharedAccounts] == "" && event.Context[ctxDeviceSharedAccounts] == "" {
		confidence = 0.65
	}

	return domain.AgentSignal{
		Risk:        domain.Float(clamp01(risk)),
		Confidence:  domain.Float(confidence),
		Explanation: explanation,
	}, nil
}

func contextCount(event domain.LoginEvent, key string) int {
	raw, ok := event.Context[key]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
