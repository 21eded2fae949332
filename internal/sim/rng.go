package sim

import "math/rand"

// rng wraps the run's single seeded generator. Every stochastic draw in a
// tick goes through one of these named helpers so the consumption order is
// fixed by the tick order and documented at the call site. Ensemble runs
// each own an independent rng, so no locking is needed.
type rng struct {
	r *rand.Rand
}

func newRNG(seed int64) *rng {
	return &rng{r: rand.New(rand.NewSource(seed))}
}

// uniform returns a draw in [lo, hi).
func (g *rng) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*g.r.Float64()
}

// chance reports whether an event with probability p occurs. p outside
// [0, 1] clamps.
func (g *rng) chance(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return g.r.Float64() < p
}

// jitter returns a multiplicative factor in [1-spread, 1+spread].
func (g *rng) jitter(spread float64) float64 {
	return 1 + g.uniform(-spread, spread)
}

// weightedIndex picks an index proportionally to weights. Zero or negative
// total weight returns -1.
func (g *rng) weightedIndex(weights []float64) int {
	var total float64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return -1
	}
	target := g.r.Float64() * total
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		target -= w
		if target < 0 {
			return i
		}
	}
	return len(weights) - 1
}
