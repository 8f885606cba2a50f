// Package randctx provides the paired seeded random sources threaded
// through pattern synthesis and address mapping, replacing the single
// global std::mt19937 generator of the reference implementation with
// explicit, independently seedable contexts (spec.md §9).
package randctx

import "math/rand"

// Pair holds two independent generators: one driving pattern synthesis
// (frequencies, amplitudes, aggressor counts) and one driving address
// mapping (bank selection, row placement). Splitting them lets a caller
// replay the same abstract pattern against different randomized
// placements, and vice versa, without one draw sequence perturbing the
// other.
type Pair struct {
	Pattern *rand.Rand
	Mapping *rand.Rand
}

// New builds a Pair from two seeds. Passing the same seeds always
// reproduces the same pattern and mapping.
func New(patternSeed, mappingSeed int64) *Pair {
	return &Pair{
		Pattern: rand.New(rand.NewSource(patternSeed)),
		Mapping: rand.New(rand.NewSource(mappingSeed)),
	}
}

// NumSidedDistribution is a discrete distribution over "N" (the number
// of aggressors in an AAP), given as parallel slices of values and
// integer weights — mirroring the reference's
// std::discrete_distribution<int> built from a {value: weight} map.
type NumSidedDistribution struct {
	Values  []int
	Weights []int
}

// DefaultNumSided is the distribution used when randomizing fuzzing
// parameters without an override: a 1-sided AAP 20% of the time, a
// 2-sided AAP 80% of the time.
var DefaultNumSided = NumSidedDistribution{Values: []int{1, 2}, Weights: []int{20, 80}}

// Draw samples one value from the distribution using r.
func (d NumSidedDistribution) Draw(r *rand.Rand) int {
	total := 0
	for _, w := range d.Weights {
		total += w
	}
	if total <= 0 {
		return d.Values[0]
	}
	pick := r.Intn(total)
	acc := 0
	for i, w := range d.Weights {
		acc += w
		if pick < acc {
			return d.Values[i]
		}
	}
	return d.Values[len(d.Values)-1]
}
