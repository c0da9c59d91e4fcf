package agents

import (
	"sort"

	"riskgate/internal/domain"
)

// Explanations are deterministic and template-based: phrases come from agent
// outputs only, highest-risk agents first, at most this many factors.
const maxExplanationFactors = 4

// Explain collects the top contributing factors across present signals for
// attachment to a decision's rationale. Factors from higher-risk agents come
// first; within one agent, factor keys sort alphabetically so output is
// stable.
func Explain(sig domain.AggregatedSignal) []string {
	type scored struct {
		risk    float64
		factors []string
	}

	var agents []scored
	for _, s := range sig.PerAgent {
		if !s.Present() || len(s.Explanation) == 0 {
			continue
		}
		keys := make([]string, 0, len(s.Explanation))
		for k := range s.Explanation {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		factors := make([]string, 0, len(keys))
		for _, k := range keys {
			factors = append(factors, s.Explanation[k])
		}
		agents = append(agents, scored{risk: *s.Risk, factors: factors})
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].risk > agents[j].risk })

	var out []string
	seen := make(map[string]struct{})
	for _, a := range agents {
		for _, f := range a.factors {
			if _, dup := seen[f]; dup {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
			if len(out) == maxExplanationFactors {
				return out
			}
		}
	}
	return out
}
