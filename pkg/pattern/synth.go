package pattern

import (
	"math"

	"github.com/google/uuid"

	"github.com/dramfuzz/dramfuzz/internal/randctx"
)

// EvenDivisors returns the divisors of n that are even and at least
// minValue, mirroring the reference's get_random_even_divisior search
// (which special-cases n itself being reachable via an odd i whose
// cofactor n/i==1).
func EvenDivisors(n, minValue int) []int {
	var divisors []int
	for i := 1; i*i <= n; i++ {
		if n%i != 0 {
			continue
		}
		j := n / i
		if j == 1 && i%2 == 0 {
			divisors = append(divisors, i)
			continue
		}
		if i%2 == 0 {
			divisors = append(divisors, i)
		}
		if j%2 == 0 && j != i {
			divisors = append(divisors, j)
		}
	}
	var filtered []int
	for _, d := range divisors {
		if d >= minValue {
			filtered = append(filtered, d)
		}
	}
	if len(filtered) == 0 {
		return []int{n}
	}
	return filtered
}

// randomBasePeriod draws an even divisor of totalActivations, at least
// 4, uniformly from the eligible set.
func randomBasePeriod(r randPair, totalActivations int) int {
	divisors := EvenDivisors(totalActivations, 4)
	return divisors[r.Intn(len(divisors))]
}

// randPair is the minimal interface synth.go needs from *rand.Rand,
// satisfied by randctx.Pair.Pattern.
type randPair interface {
	Intn(n int) int
	NormFloat64() float64
	Float64() float64
}

// allowedMultipliers returns {1, 2, 4, ...} up to the largest power of
// two not exceeding totalActivations/basePeriod.
func allowedMultipliers(totalActivations, basePeriod int) []int {
	limit := totalActivations / basePeriod
	var m []int
	for v := 1; v <= limit; v *= 2 {
		m = append(m, v)
	}
	if len(m) == 0 {
		m = []int{1}
	}
	return m
}

// gaussianBiasedPick draws an index from pool centered at its midpoint,
// resampling until in-range — a discrete approximation of a Gaussian
// draw over a small ordered set.
func gaussianBiasedPick(r randPair, pool []int) int {
	if len(pool) == 1 {
		return pool[0]
	}
	mid := float64(len(pool)-1) / 2
	spread := mid/2 + 1
	for attempt := 0; attempt < 64; attempt++ {
		idx := int(math.Round(mid + r.NormFloat64()*spread))
		if idx >= 0 && idx < len(pool) {
			return pool[idx]
		}
	}
	return pool[int(mid)]
}

// Synthesize builds a HammeringPattern's access_stream and AAPs from a
// fuzzing parameter set, per spec.md §4.E.1. basePeriod and
// totalActivations are computed by the caller (see NewHammeringPattern) and
// passed in so they can be pinned for replay.
func Synthesize(p Params, rng *randctx.Pair, basePeriod, totalActivations int) ([]Aggressor, []AAP) {
	stream := make([]Aggressor, totalActivations)
	for i := range stream {
		stream[i] = Placeholder
	}

	allowed := allowedMultipliers(totalActivations, basePeriod)
	pool := append([]int(nil), allowed...)

	var aaps []AAP
	var nextID Aggressor

	for k := 0; k < basePeriod; k++ {
		if stream[k] != Placeholder {
			continue
		}

		m := gaussianBiasedPick(rng.Pattern, pool)
		period := m * basePeriod
		pool = shrinkPoolAbove(pool, m)

		gap := distanceToNextFilled(stream, k, basePeriod)
		nSided := p.NSided
		if nSided.Values == nil {
			nSided = randctx.DefaultNumSided
		}
		n := nSided.Draw(rng.Pattern)
		if n > gap {
			n = gap
		}
		if n < 1 {
			n = 1
		}

		maxAmp := gap / n
		if p.AmplitudeMax > 0 && maxAmp > p.AmplitudeMax {
			maxAmp = p.AmplitudeMax
		}
		if maxAmp < 1 {
			maxAmp = 1
		}
		amplitude := 1 + rng.Pattern.Intn(maxAmp)

		aggs := make([]Aggressor, n)
		for i := range aggs {
			aggs[i] = nextID
			nextID++
		}

		aap := AAP{Aggressors: aggs, Frequency: period, Amplitude: amplitude, StartOffset: k}
		aaps = append(aaps, aap)
		stampAAP(stream, aap)
	}

	// Step 3: some positions at stride basePeriod from a slot k may
	// remain unfilled because the chosen period didn't tile all the way
	// to totalActivations. Refill with larger multipliers, reusing the
	// same aggressor identities as the slot's original AAP so the
	// access stream keeps referencing a bounded aggressor set.
	for k := 0; k < basePeriod; k++ {
		if stream[k] == Placeholder {
			continue // synthesis error in the k==0..basePeriod-1 loop above; nothing to extend from
		}
		for stillUnfilled(stream, k, basePeriod) {
			base := aapStartingAt(aaps, k)
			if base == nil {
				break
			}
			biggerPool := allowedMultipliers(totalActivations, basePeriod)
			curMultiplier := base.Frequency / basePeriod
			mPrime := nextLarger(biggerPool, curMultiplier)
			if mPrime <= curMultiplier {
				// Pool exhausted: guarantee termination by filling every
				// remaining placeholder at this phase directly.
				fillRemainingAtPhase(stream, k, basePeriod, base.Aggressors)
				break
			}
			extension := AAP{
				Aggressors:  base.Aggressors,
				Frequency:   mPrime * basePeriod,
				Amplitude:   base.Amplitude,
				StartOffset: k,
			}
			aaps = append(aaps, extension)
			stampAAP(stream, extension)
		}
	}

	return stream, aaps
}

// RebuildAccessStream reconstructs an access stream from a previously
// synthesized AAP set, without drawing any new randomness. It is what
// replay uses to restore a pattern's access stream from its archived
// agg_access_patterns rather than re-running Synthesize (spec.md §4.G.3).
func RebuildAccessStream(totalActivations int, aaps []AAP) []Aggressor {
	stream := make([]Aggressor, totalActivations)
	for i := range stream {
		stream[i] = Placeholder
	}
	for _, aap := range aaps {
		stampAAP(stream, aap)
	}
	return stream
}

func shrinkPoolAbove(pool []int, m int) []int {
	var out []int
	for _, v := range pool {
		if v >= m {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return []int{m}
	}
	return out
}

// distanceToNextFilled returns how many positions, starting at k and
// stepping by 1, remain before either basePeriod is reached or a
// non-placeholder slot is hit.
func distanceToNextFilled(stream []Aggressor, k, basePeriod int) int {
	limit := basePeriod - k
	for i := 1; i < limit; i++ {
		if stream[k+i] != Placeholder {
			return i
		}
	}
	return limit
}

// stampAAP writes aap's aggressors into every stream position it
// covers across the full access stream, skipping positions already
// filled.
func stampAAP(stream []Aggressor, aap AAP) {
	total := len(stream)
	n := len(aap.Aggressors)
	for p := 0; aap.StartOffset+p*aap.Frequency < total; p++ {
		for q := 0; q < aap.Amplitude; q++ {
			for r := 0; r < n; r++ {
				idx := aap.StartOffset + p*aap.Frequency + q*n + r
				if idx >= total {
					break
				}
				if stream[idx] == Placeholder {
					stream[idx] = aap.Aggressors[r]
				}
			}
		}
	}
}

func stillUnfilled(stream []Aggressor, k, basePeriod int) bool {
	for i := k; i < len(stream); i += basePeriod {
		if stream[i] == Placeholder {
			return true
		}
	}
	return false
}

func aapStartingAt(aaps []AAP, k int) *AAP {
	for i := len(aaps) - 1; i >= 0; i-- {
		if aaps[i].StartOffset == k {
			return &aaps[i]
		}
	}
	return nil
}

func nextLarger(pool []int, than int) int {
	best := than
	for _, v := range pool {
		if v > than && (best == than || v < best) {
			best = v
		}
	}
	return best
}

func fillRemainingAtPhase(stream []Aggressor, k, basePeriod int, aggressors []Aggressor) {
	n := len(aggressors)
	j := 0
	for i := k; i < len(stream); i += basePeriod {
		if stream[i] == Placeholder {
			stream[i] = aggressors[j%n]
			j++
		}
	}
}

// NewHammeringPattern computes the derived quantities from spec.md
// §4.E.1 (total_activations, base_period, max_period) and synthesizes
// the access stream.
func NewHammeringPattern(p Params, rng *randctx.Pair) HammeringPattern {
	total := p.ActsPerRefresh * p.NumRefreshIntervals
	basePeriod := randomBasePeriod(rng.Pattern, total)
	stream, aaps := Synthesize(p, rng, basePeriod, total)

	maxMultiplier := 1
	for _, a := range aaps {
		if m := a.Frequency / basePeriod; m > maxMultiplier {
			maxMultiplier = m
		}
	}

	return HammeringPattern{
		ID:                  uuid.New(),
		BasePeriod:          basePeriod,
		MaxPeriod:           maxMultiplier * basePeriod,
		TotalActivations:    total,
		NumRefreshIntervals: p.NumRefreshIntervals,
		AccessStream:        stream,
		AAPs:                aaps,
	}
}
