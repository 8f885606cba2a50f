// Package pattern synthesizes abstract frequency/amplitude/phase access
// patterns over a base period and maps them onto concrete DRAM rows,
// per spec.md §4.E.
package pattern

import (
	"github.com/google/uuid"

	"github.com/dramfuzz/dramfuzz/pkg/arena"
	"github.com/dramfuzz/dramfuzz/pkg/dramaddr"
	"github.com/dramfuzz/dramfuzz/pkg/hammerparams"
)

// Aggressor is an abstract access identity. It carries no address —
// only identity — until a Mapping assigns it a DRAM row.
type Aggressor int32

// Placeholder marks an access-stream slot not yet assigned an
// aggressor.
const Placeholder Aggressor = -1

// AAP is an aggressor-access pattern: starting at StartOffset, every
// Frequency accesses the Aggressors list is replayed Amplitude times
// back-to-back.
type AAP struct {
	Aggressors  []Aggressor
	Frequency   int
	Amplitude   int
	StartOffset int
}

// HammeringPattern is the complete abstract pattern: a filled access
// stream plus the AAPs whose pointwise union produced it, and every
// DRAM-location probe (Mapping) it has been tried at.
type HammeringPattern struct {
	ID                  uuid.UUID
	BasePeriod          int
	MaxPeriod           int
	TotalActivations    int
	NumRefreshIntervals int
	AccessStream        []Aggressor
	AAPs                []AAP
	Mappings            []*Mapping
	IsLocationDependent bool
}

// Mapping assigns every aggressor identity in a pattern to a concrete
// DRAM row within one bank, and records the victim rows and bit flips
// observed at that placement.
type Mapping struct {
	ID                   uuid.UUID
	Bank                 int
	MinRow               int
	MaxRow               int
	AggToAddr            map[Aggressor]dramaddr.Addr
	VictimRows           map[dramaddr.Addr]struct{}
	BitFlips             [][]arena.BitFlip
	ReproducibilityScore float64
	Jitter               hammerparams.JitterParams
}
