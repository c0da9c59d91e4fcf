package agents

import (
	"riskgate/internal/domain"
)

// Confidence scoring constants. Agreement between agents is the primary
// source of certainty; weakly-evidenced scores and absent agents erode it.
const (
	missingEvidencePenalty   = 0.20
	highDisagreementPenalty  = 0.25
	lowDisagreementThreshold = 0.30
	weakEvidenceRiskFloor    = 0.30
)

// ScoreConfidence derives the composite confidence for a set of signals.
// The base is agreement (1 minus disagreement); penalties apply for each
// absent agent, for any present agent reporting elevated risk without naming
// a single factor, and for disagreement above the comfort threshold.
func ScoreConfidence(per map[string]domain.AgentSignal, disagreement float64) float64 {
	base := 1.0 - disagreement

	penalty := 0.0
	for _, s := range per {
		if !s.Present() {
			penalty += missingEvidencePenalty
			continue
		}
		if *s.Risk > weakEvidenceRiskFloor && len(s.Explanation) == 0 {
			penalty += missingEvidencePenalty
		}
	}
	if disagreement > lowDisagreementThreshold {
		penalty += highDisagreementPenalty * disagreement
	}

	return clamp01(base - penalty)
}

// Disagreement measures conflict between present signals as the widest
// pairwise gap between risk scores: 0 for perfect agreement, 1 when one
// agent reports no risk while another reports certainty. Fewer than two
// present signals cannot disagree.
func Disagreement(per map[string]domain.AgentSignal) float64 {
	lo, hi := 1.0, 0.0
	present := 0
	for _, s := range per {
		if !s.Present() {
			continue
		}
		present++
		if *s.Risk < lo {
			lo = *s.Risk
		}
		if *s.Risk > hi {
			hi = *s.Risk
		}
	}
	if present < 2 {
		return 0
	}
	return clamp01(hi - lo)
}
