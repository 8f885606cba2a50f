package fuzzer

import (
	"fmt"
	"sort"

	"github.com/dramfuzz/dramfuzz/pkg/archive"
	"github.com/dramfuzz/dramfuzz/pkg/arena"
	"github.com/dramfuzz/dramfuzz/pkg/dramaddr"
	"github.com/dramfuzz/dramfuzz/pkg/hammer"
	"github.com/dramfuzz/dramfuzz/pkg/pattern"
)

const (
	// MiniSweepSize is the 2 MiB sweep window of spec.md §4.G.1.
	MiniSweepSize = 2 << 20
	// FullSweepSize is the 256 MiB sweep window of spec.md §4.G.2.
	FullSweepSize = 256 << 20
)

// rowBytes returns the byte span a single row covers in the address
// translator's column field, used to convert a sweep's byte budget into
// a number of row-shift steps.
func (c *Context) rowBytes() int { return 1 << c.Derived.NumCols }

// MiniSweepResult ranks one archived pattern's mini-sweep outcome.
type MiniSweepResult struct {
	PatternID      string
	PositiveShifts int
	ShiftsSwept    int
}

// MiniSweep places each archived pattern's best mapping at a random
// (bank, row), sweeps it across MiniSweepSize by shifting one row at a
// time, and ranks patterns by the number of shift positions that
// produced a bit flip (spec.md §4.G.1).
func (c *Context) MiniSweep() ([]MiniSweepResult, error) {
	results := make([]MiniSweepResult, 0, len(c.Patterns))
	for _, hp := range c.Patterns {
		base := bestMapping(hp)
		if base == nil {
			continue
		}
		positive, swept, err := c.sweepMapping(hp, base, MiniSweepSize, false)
		if err != nil {
			return nil, fmt.Errorf("fuzzer: mini-sweeping pattern %s: %w", hp.ID, err)
		}
		results = append(results, MiniSweepResult{PatternID: hp.ID.String(), PositiveShifts: positive, ShiftsSwept: swept})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].PositiveShifts > results[j].PositiveShifts })
	return results, nil
}

// Sweep runs the full 256 MiB sweep of spec.md §4.G.2 against a single
// pattern. When stopOnFirst is set (the "best-pattern-only" mode), the
// sweep stops at the first shift position producing a bit flip.
func (c *Context) Sweep(hp *pattern.HammeringPattern, stopOnFirst bool) (archive.PatternSweep, error) {
	base := bestMapping(hp)
	if base == nil {
		return archive.PatternSweep{}, fmt.Errorf("fuzzer: pattern %s has no mapping to sweep", hp.ID)
	}

	var flips []arena.BitFlip
	positive, swept, err := c.sweepMappingCollect(hp, base, FullSweepSize, stopOnFirst, &flips)
	if err != nil {
		return archive.PatternSweep{}, err
	}

	zeroToOne, oneToZero := archive.CountTransitions(flips)
	return archive.PatternSweep{
		PatternID: hp.ID.String(),
		Mappings: []archive.MappingSweep{{
			MappingID:      base.ID.String(),
			PositiveShifts: positive,
			ShiftsSwept:    swept,
			ZeroToOne:      zeroToOne,
			OneToZero:      oneToZero,
			BitFlips:       flips,
		}},
	}, nil
}

// sweepMapping is sweepMappingCollect without bit-flip accumulation, for
// the mini-sweep's ranking-only use.
func (c *Context) sweepMapping(hp *pattern.HammeringPattern, base *pattern.Mapping, sizeBytes int, stopOnFirst bool) (positive, swept int, err error) {
	return c.sweepMappingCollect(hp, base, sizeBytes, stopOnFirst, nil)
}

func (c *Context) sweepMappingCollect(hp *pattern.HammeringPattern, base *pattern.Mapping, sizeBytes int, stopOnFirst bool, collected *[]arena.BitFlip) (positive, swept int, err error) {
	steps := sizeBytes / c.rowBytes()
	if steps < 1 {
		steps = 1
	}
	maxStartRow := c.Translator.NumRows() - steps
	if maxStartRow < 1 {
		maxStartRow = 1
	}

	m := cloneMapping(base)
	startBank := c.RNG.Mapping.Intn(c.Translator.NumBanks())
	startRow := c.RNG.Mapping.Intn(maxStartRow)
	pattern.Remap(m, dramaddr.Addr{Bank: startBank, Row: startRow, Col: 0})

	for s := 0; s < steps; s++ {
		flips, herr := c.scanOnce(hp, m)
		if herr != nil {
			return positive, swept, herr
		}
		swept++
		if len(flips) > 0 {
			positive++
			if collected != nil {
				*collected = append(*collected, flips...)
			}
			if stopOnFirst {
				break
			}
		}
		pattern.ShiftMapping(m, 1, nil)
	}
	return positive, swept, nil
}

// scanOnce hammers m once and returns any bit flips observed, without
// appending m to hp.Mappings (a sweep step is not itself an archived
// probe).
func (c *Context) scanOnce(hp *pattern.HammeringPattern, m *pattern.Mapping) ([]arena.BitFlip, error) {
	addrs := hammer.ResolveAddresses(hp.AccessStream, m, c.Translator)
	head, body, tail, err := hammer.SplitSyncAggressors(addrs, c.HammerParams.Jitter.NumSyncAggressors)
	if err != nil {
		return nil, err
	}
	c.Engine.Hammer(head, body, tail)
	return hammer.ScanVictims(c.Arena, m, c.Translator)
}

// bestMapping returns the mapping within hp that produced the most bit
// flips across its probes, or hp's first mapping if none produced any.
func bestMapping(hp *pattern.HammeringPattern) *pattern.Mapping {
	if len(hp.Mappings) == 0 {
		return nil
	}
	best := hp.Mappings[0]
	bestFlips := -1
	for _, m := range hp.Mappings {
		n := 0
		for _, probe := range m.BitFlips {
			n += len(probe)
		}
		if n > bestFlips {
			bestFlips = n
			best = m
		}
	}
	return best
}

// cloneMapping deep-copies a Mapping so a sweep's repeated ShiftMapping
// calls never mutate the archived original.
func cloneMapping(m *pattern.Mapping) *pattern.Mapping {
	addrs := make(map[pattern.Aggressor]dramaddr.Addr, len(m.AggToAddr))
	for k, v := range m.AggToAddr {
		addrs[k] = v
	}
	victims := make(map[dramaddr.Addr]struct{}, len(m.VictimRows))
	for k := range m.VictimRows {
		victims[k] = struct{}{}
	}
	return &pattern.Mapping{
		ID:                   m.ID,
		Bank:                 m.Bank,
		MinRow:               m.MinRow,
		MaxRow:               m.MaxRow,
		AggToAddr:            addrs,
		VictimRows:           victims,
		ReproducibilityScore: m.ReproducibilityScore,
		Jitter:               m.Jitter,
	}
}
