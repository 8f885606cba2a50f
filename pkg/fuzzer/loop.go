package fuzzer

import (
	"time"

	"github.com/dramfuzz/dramfuzz/pkg/arena"
	"github.com/dramfuzz/dramfuzz/pkg/hammer"
	"github.com/dramfuzz/dramfuzz/pkg/pattern"
)

// reseedRoundsInterval matches spec.md §4.G's "every 100 rounds:
// re-measure acts_per_trefi (unless fixed)".
const reseedRoundsInterval = 100

// Run executes the main fuzzing loop until the wall-clock budget
// (Config.RuntimeLimit) elapses, per spec.md §4.G. It archives every
// pattern that produced at least one bit flip and tracks the
// best-so-far pattern by cumulative bit-flip count.
func (c *Context) Run() error {
	deadline := c.StartTime.Add(c.RuntimeLimit)
	round := 0

	for time.Now().Before(deadline) {
		c.cntGeneratedPatterns++

		params := c.PatternParams
		params.ActsPerRefresh = roundActsPerRefresh(c.ActsPerRefresh)
		params.NumRefreshIntervals = c.NumRefreshIntervals

		hp := pattern.NewHammeringPattern(params, c.RNG)
		shuffleAAPs(c.RNG.Mapping, hp.AAPs)

		for p := 0; p < c.ProbesPerPattern; p++ {
			c.cntPatternProbes++
			c.probeOnce(&hp, params)
		}

		if totalBitFlips(&hp) > 0 {
			c.Patterns = append(c.Patterns, &hp)
		}
		if flips := totalBitFlips(&hp); flips > c.BestFlips {
			c.BestFlips = flips
			c.Best = &hp
			c.Log.Success().Str("pattern_id", hp.ID.String()).Int("bit_flips", flips).Msg("new best pattern")
		}

		round++
		if round%reseedRoundsInterval == 0 && c.ActsPerRefOverride <= 0 {
			if v, err := c.Analyzer.CountActsPerRefresh(0); err == nil {
				c.ActsPerRefresh = v
			} else {
				c.Log.Warn().Err(err).Msg("activations-per-refresh re-measurement did not converge, keeping previous estimate")
			}
		}
	}

	return nil
}

// probeOnce maps the pattern at a fresh placement, hammers it, and
// scans for bit flips, recording the mapping and any flips on hp.
func (c *Context) probeOnce(hp *pattern.HammeringPattern, params pattern.Params) {
	m := pattern.NewMapping(params, c.RNG, hp.AAPs, c.Banks)
	m.Jitter = c.HammerParams.Jitter

	if _, err := c.hammerMapping(hp, m); err != nil {
		c.Log.Warn().Err(err).Str("pattern_id", hp.ID.String()).Msg("skipping unhammerable mapping")
		return
	}
	hp.Mappings = append(hp.Mappings, m)
}

// hammerMapping resolves hp's access stream against m, hammers it, and
// records any observed bit flips directly on m.
func (c *Context) hammerMapping(hp *pattern.HammeringPattern, m *pattern.Mapping) ([]arena.BitFlip, error) {
	addrs := hammer.ResolveAddresses(hp.AccessStream, m, c.Translator)
	head, body, tail, err := hammer.SplitSyncAggressors(addrs, c.HammerParams.Jitter.NumSyncAggressors)
	if err != nil {
		return nil, err
	}

	c.Engine.Hammer(head, body, tail)

	flips, err := hammer.ScanVictims(c.Arena, m, c.Translator)
	if err != nil {
		return nil, err
	}
	if len(flips) > 0 {
		c.Log.BitFlip().Str("mapping_id", m.ID.String()).Int("count", len(flips)).Msg("bit flips detected")
	}
	return flips, nil
}

// shuffleAAPs randomizes the order AAPs are visited during mapping, so
// the first-come-first-placed row assignment in pattern.NewMapping does
// not systematically favor whichever AAP synthesis happened to emit
// first (spec.md §4.G: "shuffle agg_access_patterns order // unbiases
// mapping assignment").
func shuffleAAPs(r interface{ Intn(int) int }, aaps []pattern.AAP) {
	for i := len(aaps) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		aaps[i], aaps[j] = aaps[j], aaps[i]
	}
}
