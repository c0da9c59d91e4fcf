package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRulesValidate(t *testing.T) {
	valid := func(mutate func(*Rules)) Rules {
		r := DefaultRules()
		mutate(&r)
		return r
	}

	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, DefaultRules().Validate())
	})

	cases := []struct {
		name  string
		rules Rules
	}{
		{"allow threshold above one", valid(func(r *Rules) { r.ConfidenceAllow = 1.1 })},
		{"negative escalate threshold", valid(func(r *Rules) { r.ConfidenceEscalate = -0.1 })},
		{"escalate above allow", valid(func(r *Rules) { r.ConfidenceEscalate = 0.9 })},
		{"negative quota", valid(func(r *Rules) { r.MaxActionsPerUserPerDay = -1 })},
		{"negative streak limit", valid(func(r *Rules) { r.ConsecutiveHighRiskLimit = -1 })},
		{"unknown combinator", valid(func(r *Rules) { r.Combinator = "median" })},
		{"negative agent weight", valid(func(r *Rules) { r.AgentWeights = map[string]float64{"detection": -1} })},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.rules.Validate())
		})
	}
}

func TestCriticalAgent(t *testing.T) {
	r := DefaultRules()
	r.CriticalAgents = []string{"detection", "network"}

	assert.True(t, r.CriticalAgent("detection"))
	assert.False(t, r.CriticalAgent("behavior"))
}

func TestSwitch(t *testing.T) {
	ctx := context.Background()
	s := NewSwitch()

	assert.False(t, s.IsEscalateOnly(ctx))
	assert.NoError(t, s.Activate(ctx))
	assert.True(t, s.IsEscalateOnly(ctx))
	assert.NoError(t, s.Deactivate(ctx))
	assert.False(t, s.IsEscalateOnly(ctx))
}
