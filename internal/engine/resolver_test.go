package engine

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fableturn/pkg/outcome"
)

func ptr(f float64) *float64 { return &f }

func candidates(weights ...float64) []outcome.Outcome {
	out := make([]outcome.Outcome, len(weights))
	for i, w := range weights {
		out[i] = outcome.Outcome{
			OutcomeType:      outcome.TypeSuccess,
			NarrativeSummary: string(rune('a' + i)),
			Probability:      ptr(w),
		}
	}
	return out
}

func TestSelectRespectsCumulativeBands(t *testing.T) {
	// With a fixed seed, the first Float64 draw is deterministic; verify
	// selection lands in the band the draw falls into.
	cands := candidates(0.1, 0.3, 0.6)

	src := rand.NewPCG(42, 0)
	draw := rand.New(rand.NewPCG(42, 0)).Float64() // same sequence as the resolver will see

	r := NewResolver(src)
	selected := r.Select(cands)

	var expected outcome.Outcome
	switch {
	case draw < 0.1:
		expected = cands[0]
	case draw < 0.4:
		expected = cands[1]
	default:
		expected = cands[2]
	}
	assert.Equal(t, expected.NarrativeSummary, selected.NarrativeSummary)
}

func TestSelectDistribution(t *testing.T) {
	// A heavily skewed spectrum should pick the heavy candidate most of the
	// time over many trials.
	cands := candidates(0.05, 0.95)
	r := NewResolver(rand.NewPCG(7, 7))

	heavy := 0
	for i := 0; i < 1000; i++ {
		if r.Select(cands).NarrativeSummary == cands[1].NarrativeSummary {
			heavy++
		}
	}
	assert.Greater(t, heavy, 850)
}

func TestSelectAllZeroWeightsPicksUniformly(t *testing.T) {
	cands := candidates(0, 0, 0)
	r := NewResolver(rand.NewPCG(1, 1))

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		seen[r.Select(cands).NarrativeSummary] = true
	}
	assert.Len(t, seen, 3)
}

func TestSelectSingleCandidate(t *testing.T) {
	cands := candidates(1.0)
	r := NewResolver(rand.NewPCG(3, 3))
	assert.Equal(t, cands[0].NarrativeSummary, r.Select(cands).NarrativeSummary)
}

func TestCurateFiltersMalformed(t *testing.T) {
	cands := []outcome.Outcome{
		{OutcomeType: outcome.TypeSuccess, Probability: ptr(0.5)},
		{OutcomeType: "", Probability: ptr(0.5)},                 // missing type
		{OutcomeType: outcome.TypeFailure},                       // missing probability
		{OutcomeType: outcome.TypeFailure, Probability: ptr(-1)}, // negative
		{OutcomeType: outcome.TypeFailure, Probability: ptr(0.5)},
	}

	r := NewResolver(nil)
	valid := r.Curate(cands)
	require.Len(t, valid, 2)
	assert.Equal(t, outcome.TypeSuccess, valid[0].OutcomeType)
	assert.Equal(t, outcome.TypeFailure, valid[1].OutcomeType)
}

func TestCurateEmptiesFully(t *testing.T) {
	cands := []outcome.Outcome{{OutcomeType: ""}}
	r := NewResolver(nil)
	assert.Empty(t, r.Curate(cands))
}
