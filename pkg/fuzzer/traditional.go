package fuzzer

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/dramfuzz/dramfuzz/pkg/arena"
	"github.com/dramfuzz/dramfuzz/pkg/pattern"
)

// BuiltinPatterns are fixed, hand-authored access patterns replayed
// verbatim with no synthesis — the original implementation's
// TraditionalHammerer mode, supplemented here from original_source/ per
// SPEC_FULL.md §4.G's expansion note. They exist to sanity-check a host
// before committing to a full fuzzing run.
var BuiltinPatterns = []string{"single-sided", "double-sided"}

// ErrUnknownBuiltinPattern is returned by RunTraditional for a name not
// in BuiltinPatterns.
var ErrUnknownBuiltinPattern = fmt.Errorf("fuzzer: unknown builtin pattern, want one of %v", BuiltinPatterns)

// builtinAccessStream builds the fixed access stream for name, repeated
// until it fills totalActivations accesses.
func builtinAccessStream(name string, totalActivations int) ([]pattern.Aggressor, []pattern.AAP, error) {
	var aggs []pattern.Aggressor
	switch name {
	case "single-sided":
		aggs = []pattern.Aggressor{0}
	case "double-sided":
		aggs = []pattern.Aggressor{0, 1}
	default:
		return nil, nil, ErrUnknownBuiltinPattern
	}

	aap := pattern.AAP{Aggressors: aggs, Frequency: len(aggs), Amplitude: 1, StartOffset: 0}
	stream := pattern.RebuildAccessStream(totalActivations, []pattern.AAP{aap})
	return stream, []pattern.AAP{aap}, nil
}

// RunTraditional hammers one fixed builtin pattern at full
// TotalActivations with no randomize/probe loop, returning the bit
// flips observed at its single mapping.
func (c *Context) RunTraditional(name string) ([]arena.BitFlip, error) {
	stream, aaps, err := builtinAccessStream(name, c.HammerParams.TotalActivations)
	if err != nil {
		return nil, err
	}

	hp := pattern.HammeringPattern{
		ID:               uuid.New(),
		BasePeriod:       len(aaps[0].Aggressors),
		MaxPeriod:        len(aaps[0].Aggressors),
		TotalActivations: c.HammerParams.TotalActivations,
		AccessStream:     stream,
		AAPs:             aaps,
	}

	params := c.PatternParams
	if params.MaxRowNo <= 0 {
		params.MaxRowNo = c.Translator.NumRows()
	}
	if params.InterDistance <= 0 {
		params.InterDistance = 2
	}
	if params.IntraDistance <= 0 {
		params.IntraDistance = pattern.DefaultIntraDistance
	}

	m := pattern.NewMapping(params, c.RNG, hp.AAPs, c.Banks)
	m.Jitter = c.HammerParams.Jitter

	flips, err := c.hammerMapping(&hp, m)
	if err != nil {
		return nil, err
	}
	hp.Mappings = append(hp.Mappings, m)
	return flips, nil
}
