package fuzzer

import (
	"time"

	"github.com/dramfuzz/dramfuzz/pkg/archive"
	"github.com/dramfuzz/dramfuzz/pkg/pattern"
)

// Archive builds the pattern-archive document for every pattern
// recorded so far (spec.md §6).
func (c *Context) Archive(end time.Time) archive.Archive {
	patterns := make([]archive.Pattern, len(c.Patterns))
	for i, hp := range c.Patterns {
		patterns[i] = archive.FromPattern(hp)
	}
	return archive.Archive{
		Metadata: archive.Metadata{
			RunID:     c.RunID,
			StartTime: c.StartTime,
			EndTime:   end,
			MemConfig: archive.SummarizeConfig(c.MemConfig),
		},
		HammeringPatterns: patterns,
	}
}

// Finish runs the exit-time sequence of spec.md §4.G: emit the archive,
// run the mini-sweep to rank archived patterns, and, if Sweeping is
// set, sweep the best-ranked pattern across the full 256 MiB window,
// stopping at its first bit flip (the "best-pattern-only" mode).
func (c *Context) Finish() (archive.Archive, archive.SweepSummary, error) {
	end := time.Now()
	arc := c.Archive(end)

	ranked, err := c.MiniSweep()
	if err != nil {
		return arc, archive.SweepSummary{}, err
	}

	summary := archive.SweepSummary{
		Metadata: arc.Metadata,
	}
	if !c.Sweeping || len(ranked) == 0 {
		return arc, summary, nil
	}

	winner := patternByID(c.Patterns, ranked[0].PatternID)
	if winner == nil {
		return arc, summary, nil
	}
	sweep, err := c.Sweep(winner, true)
	if err != nil {
		return arc, summary, err
	}
	summary.Sweeps = []archive.PatternSweep{sweep}
	return arc, summary, nil
}

func patternByID(patterns []*pattern.HammeringPattern, id string) *pattern.HammeringPattern {
	for _, hp := range patterns {
		if hp.ID.String() == id {
			return hp
		}
	}
	return nil
}
