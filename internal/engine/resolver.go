package engine

import (
	"math/rand/v2"

	"fableturn/pkg/outcome"
)

// Resolver selects one outcome from a weighted spectrum. The random source
// is injectable so selection is reproducible under test.
type Resolver struct {
	rng *rand.Rand
}

// NewResolver creates a resolver over the given source. A nil source uses
// the default global generator.
func NewResolver(src rand.Source) *Resolver {
	if src == nil {
		return &Resolver{}
	}
	return &Resolver{rng: rand.New(src)}
}

func (r *Resolver) float64() float64 {
	if r.rng != nil {
		return r.rng.Float64()
	}
	return rand.Float64()
}

func (r *Resolver) intN(n int) int {
	if r.rng != nil {
		return r.rng.IntN(n)
	}
	return rand.IntN(n)
}

// Curate passes a spectrum's candidates through with malformed entries
// removed. An empty result means the caller must substitute its canned
// failure outcome instead of selecting.
func (r *Resolver) Curate(candidates []outcome.Outcome) []outcome.Outcome {
	var valid []outcome.Outcome
	for _, c := range candidates {
		if _, ok := c.Weight(); ok {
			valid = append(valid, c)
		}
	}
	return valid
}

// Select picks one candidate by weighted random choice over a cumulative
// walk. All-zero weights select uniformly; rounding that exhausts the walk
// falls back to the last candidate. Callers must Curate first and never
// pass an empty list.
func (r *Resolver) Select(candidates []outcome.Outcome) outcome.Outcome {
	total := 0.0
	for _, c := range candidates {
		w, _ := c.Weight()
		total += w
	}

	if total <= 0 {
		return candidates[r.intN(len(candidates))]
	}

	draw := r.float64() * total
	cumulative := 0.0
	for _, c := range candidates {
		w, _ := c.Weight()
		cumulative += w
		if draw < cumulative {
			return c
		}
	}
	return candidates[len(candidates)-1]
}

// Chance reports an independent event with the given probability, using the
// resolver's source. Used for the surprise escalation and ambient ticks.
func (r *Resolver) Chance(p float64) bool {
	return r.float64() < p
}
