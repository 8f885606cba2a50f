// Package hammerparams holds the hammer engine's configuration types
// that both pkg/pattern (a mapping stores the jitter parameters it was
// probed with) and pkg/hammer (which builds a schedule from them) need,
// split out to avoid an import cycle between the two.
package hammerparams

import "time"

// FlushStrategy controls when a cache-line flush for an access is
// emitted relative to the access itself (spec.md §4.F).
type FlushStrategy int

const (
	// FlushEarliestPossible emits the flush immediately after the access.
	FlushEarliestPossible FlushStrategy = iota
	// FlushLatestPossible defers the flush until just before the next
	// access of the same address.
	FlushLatestPossible
)

func (s FlushStrategy) String() string {
	switch s {
	case FlushEarliestPossible:
		return "EARLIEST_POSSIBLE"
	case FlushLatestPossible:
		return "LATEST_POSSIBLE"
	default:
		return "UNKNOWN"
	}
}

// FenceStrategy controls when an mfence is emitted relative to the
// access that needed it.
type FenceStrategy int

const (
	// FenceOmit emits no mfence between accesses.
	FenceOmit FenceStrategy = iota
	// FenceEarliestPossible fences right after the access that needed it.
	FenceEarliestPossible
	// FenceLatestPossible fences right before the next access of an
	// address that was flushed since its previous access.
	FenceLatestPossible
)

func (s FenceStrategy) String() string {
	switch s {
	case FenceOmit:
		return "OMIT_FENCING"
	case FenceEarliestPossible:
		return "EARLIEST_POSSIBLE"
	case FenceLatestPossible:
		return "LATEST_POSSIBLE"
	default:
		return "UNKNOWN"
	}
}

// JitterParams mirrors the reference implementation's CodeJitter
// configuration: the flushing/fencing strategy pair, how many
// aggressors bracket the pattern for refresh synchronization, whether
// to resynchronize after every refresh interval, and how long to sleep
// before the first sync.
type JitterParams struct {
	FlushStrategy     FlushStrategy
	FenceStrategy     FenceStrategy
	NumSyncAggressors int
	SyncEachRef       bool
	PreHammerSleep    time.Duration
}

// DefaultJitterParams matches the reference's static defaults:
// earliest-possible flushing, latest-possible fencing, two aggressors
// reserved for sync on each side of the stream.
var DefaultJitterParams = JitterParams{
	FlushStrategy:     FlushEarliestPossible,
	FenceStrategy:     FenceLatestPossible,
	NumSyncAggressors: 2,
	SyncEachRef:       false,
	PreHammerSleep:    0,
}
