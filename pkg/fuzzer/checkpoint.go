package fuzzer

import (
	"github.com/dramfuzz/dramfuzz/pkg/archive"
	"github.com/dramfuzz/dramfuzz/pkg/pattern"
)

// Checkpoint snapshots enough run state to resume fuzzing later: every
// archived pattern, the best pattern's id, and the generation/probe
// counters (SPEC_FULL.md §4.G's --checkpoint supplement).
func (c *Context) Checkpoint() archive.Checkpoint {
	patterns := make([]archive.Pattern, len(c.Patterns))
	for i, hp := range c.Patterns {
		patterns[i] = archive.FromPattern(hp)
	}
	bestID := ""
	if c.Best != nil {
		bestID = c.Best.ID.String()
	}
	return archive.Checkpoint{
		Patterns:             patterns,
		BestPatternID:        bestID,
		BestFlips:            c.BestFlips,
		CntGeneratedPatterns: c.cntGeneratedPatterns,
		CntPatternProbes:     c.cntPatternProbes,
	}
}

// RestoreCheckpoint repopulates c's archived patterns, best-pattern
// tracking, and counters from a previously saved Checkpoint.
func (c *Context) RestoreCheckpoint(ckpt archive.Checkpoint) error {
	patterns := make([]*pattern.HammeringPattern, len(ckpt.Patterns))
	for i, p := range ckpt.Patterns {
		hp, err := archive.ToPattern(p)
		if err != nil {
			return err
		}
		patterns[i] = hp
		if hp.ID.String() == ckpt.BestPatternID {
			c.Best = hp
		}
	}
	c.Patterns = patterns
	c.BestFlips = ckpt.BestFlips
	c.cntGeneratedPatterns = ckpt.CntGeneratedPatterns
	c.cntPatternProbes = ckpt.CntPatternProbes
	return nil
}
