package hammer

import "github.com/dramfuzz/dramfuzz/pkg/hammerparams"

// FlushStrategy and FenceStrategy are re-exported from pkg/hammerparams
// so callers of pkg/hammer never need to import that leaf package
// directly — it exists only to break the pattern/hammer import cycle.
type (
	FlushStrategy = hammerparams.FlushStrategy
	FenceStrategy = hammerparams.FenceStrategy
	JitterParams  = hammerparams.JitterParams
)

const (
	FlushEarliestPossible = hammerparams.FlushEarliestPossible
	FlushLatestPossible   = hammerparams.FlushLatestPossible

	FenceOmit             = hammerparams.FenceOmit
	FenceEarliestPossible = hammerparams.FenceEarliestPossible
	FenceLatestPossible   = hammerparams.FenceLatestPossible
)

// DefaultJitterParams matches the reference's static defaults.
var DefaultJitterParams = hammerparams.DefaultJitterParams

// Params bundles the per-invocation knobs from spec.md §4.F beyond the
// flush/fence strategy pair: the busy-wait refresh-detection threshold
// (in TSC cycles) and the total-activation budget that bounds step 6's
// repeat loop.
type Params struct {
	Jitter           JitterParams
	RefreshThreshold float64
	TotalActivations int
	ActsPerTREFI     int
}

// DefaultParams mirrors CodeJitter's defaults: a 1000-cycle refresh
// threshold and a 5,000,000-activation budget.
var DefaultParams = Params{
	Jitter:           hammerparams.DefaultJitterParams,
	RefreshThreshold: 1000,
	TotalActivations: 5_000_000,
}
