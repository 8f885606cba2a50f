package pattern

import "github.com/dramfuzz/dramfuzz/internal/randctx"

// Params is the fuzzing parameter set driving synthesis and mapping:
// all the random ranges and fixed values spec.md §3 groups under
// "Fuzzing parameter set".
type Params struct {
	ActsPerRefresh      int // measured or overridden activations per tREFI
	NumRefreshIntervals int // power of two, 1..16
	NumAggressors       int // total distinct aggressors target for this pattern, 8..96

	NSided          randctx.NumSidedDistribution
	AmplitudeMax    int // amplitude drawn from [1, AmplitudeMax]
	IntraDistance   int // fixed row distance between same-AAP aggressors after the first; reference uses 2
	InterDistance   int // row distance advance per fresh aggressor placement, 1..24
	MaxRowNo        int // rows per bank, used for wraparound
	StartRowMax     int // exclusive upper bound for a pattern's start_row

	VictimRadius int // rows above/below an aggressor row considered victims; reference uses 5
}

// DefaultVictimRadius mirrors the reference's five-rows-each-side
// victim window.
const DefaultVictimRadius = 5

// DefaultIntraDistance is the reference's fixed intra-AAP row distance.
const DefaultIntraDistance = 2
