// Package fuzzer drives the main fuzzing loop: synthesize a pattern,
// probe it at several DRAM placements, hammer and scan each probe, and
// archive every pattern that produced a bit flip, per spec.md §4.G. It
// also implements the mini-sweep/sweep ranking passes and replay mode.
package fuzzer

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/dramfuzz/dramfuzz/internal/randctx"
	"github.com/dramfuzz/dramfuzz/pkg/analyzer"
	"github.com/dramfuzz/dramfuzz/pkg/arena"
	"github.com/dramfuzz/dramfuzz/pkg/cpuprim"
	"github.com/dramfuzz/dramfuzz/pkg/dramaddr"
	"github.com/dramfuzz/dramfuzz/pkg/hammer"
	"github.com/dramfuzz/dramfuzz/pkg/memcfg"
	"github.com/dramfuzz/dramfuzz/pkg/pattern"
	"github.com/dramfuzz/dramfuzz/pkg/rlog"
)

// ErrNoConfig is returned by NewContext when Config.MemConfig is nil.
var ErrNoConfig = errors.New("fuzzer: no memory configuration supplied")

// Config configures a fuzzing Context. Zero-value numeric fields fall
// back to the driver's documented defaults (spec.md §4.G, §6) in
// NewContext.
type Config struct {
	MemConfig *memcfg.Config

	ArenaSize    int
	BaseAddr     uintptr
	HugePagePath string

	ActsPerRefOverride  int
	NumRefreshIntervals int // power of two, 1..16; 0 -> 2

	ProbesPerPattern int // 0 -> NumBanks/4, floor 1

	RuntimeLimit time.Duration
	Sweeping     bool

	PatternParams pattern.Params
	HammerParams  hammer.Params

	UseJIT bool

	// Log receives progress and detection events. A nil Log defaults to
	// rlog.Default() in NewContext.
	Log *rlog.Logger

	PatternSeed, MappingSeed int64
}

// Context holds every live component the fuzzing loop and its
// sub-passes (mini-sweep, sweep, replay, traditional) operate against,
// threaded explicitly rather than held in package-level state (spec.md
// §9's design note, already followed by pkg/pattern.BankCounter and
// pkg/dramaddr.Translator).
type Context struct {
	Config

	Derived    *memcfg.Derived
	Translator *dramaddr.Translator
	Arena      *arena.Arena
	Timer      *cpuprim.AccessTimer
	Analyzer   *analyzer.Analyzer
	Exec       hammer.Executor
	Engine     *hammer.Engine
	RNG        *randctx.Pair
	Banks      *pattern.BankCounter

	ActsPerRefresh float64

	RunID     string
	StartTime time.Time

	Patterns  []*pattern.HammeringPattern // archived: at least one bit flip observed
	Best      *pattern.HammeringPattern
	BestFlips int

	cntGeneratedPatterns int
	cntPatternProbes     int
}

// NewContext allocates and seeds the arena, derives the address
// translator, measures (or adopts the override for) activations per
// refresh, and returns a Context ready for Run.
func NewContext(cfg Config) (*Context, error) {
	if cfg.MemConfig == nil {
		return nil, ErrNoConfig
	}
	if cfg.Log == nil {
		d := rlog.Default()
		cfg.Log = &d
	}
	if cfg.ArenaSize <= 0 {
		cfg.ArenaSize = 1 << 30 // 1 GiB, matching the reference's default arena
	}
	if cfg.NumRefreshIntervals <= 0 {
		cfg.NumRefreshIntervals = 2
	}

	derived, err := memcfg.Derive(cfg.MemConfig)
	if err != nil {
		return nil, fmt.Errorf("fuzzer: deriving memory configuration: %w", err)
	}

	a, err := arena.Allocate(arena.Options{
		Size: cfg.ArenaSize, BaseAddr: cfg.BaseAddr, HugePagePath: cfg.HugePagePath, Log: cfg.Log.Base(),
	})
	if err != nil {
		return nil, fmt.Errorf("fuzzer: allocating arena: %w", err)
	}
	a.Seed()

	baseMSB := a.Base() &^ ((uintptr(1) << memcfg.MatrixOrder) - 1)
	trans := dramaddr.NewTranslator(derived, baseMSB)

	timer := cpuprim.NewAccessTimer()
	az := analyzer.New(timer, trans, nil)

	actsPerRef := float64(cfg.ActsPerRefOverride)
	if cfg.ActsPerRefOverride <= 0 {
		measured, err := az.CountActsPerRefresh(0)
		if err != nil && !errors.Is(err, analyzer.ErrConvergenceFailed) {
			return nil, fmt.Errorf("fuzzer: measuring activations per refresh: %w", err)
		}
		if err != nil {
			cfg.Log.Warn().Err(err).Msg("activations-per-refresh calibration did not converge, using best-effort estimate")
		} else {
			cfg.Log.Success().Float64("acts_per_trefi", measured).Msg("activations-per-refresh calibration converged")
		}
		actsPerRef = measured
	}

	exec, err := newExecutor(cfg.UseJIT)
	if err != nil {
		return nil, err
	}

	hp := cfg.HammerParams
	if hp.TotalActivations <= 0 {
		hp.TotalActivations = 5_000_000
	}
	if hp.ActsPerTREFI <= 0 {
		hp.ActsPerTREFI = int(actsPerRef)
	}
	if hp.RefreshThreshold <= 0 {
		hp.RefreshThreshold = analyzer.DefaultParams.RefreshThreshold
	}
	if hp.Jitter == (hammer.JitterParams{}) {
		hp.Jitter = hammer.DefaultJitterParams
	}

	probes := cfg.ProbesPerPattern
	if probes <= 0 {
		probes = trans.NumBanks() / 4
	}
	if probes < 1 {
		probes = 1
	}
	cfg.ProbesPerPattern = probes
	cfg.HammerParams = hp

	return &Context{
		Config:         cfg,
		Derived:        derived,
		Translator:     trans,
		Arena:          a,
		Timer:          timer,
		Analyzer:       az,
		Exec:           exec,
		Engine:         hammer.NewEngine(exec, hp),
		RNG:            randctx.New(cfg.PatternSeed, cfg.MappingSeed),
		Banks:          pattern.NewBankCounter(trans.NumBanks()),
		ActsPerRefresh: actsPerRef,
		RunID:          uuid.New().String(),
		StartTime:      time.Now(),
	}, nil
}

func newExecutor(useJIT bool) (hammer.Executor, error) {
	if !useJIT {
		return hammer.NewInterpretedExecutor(), nil
	}
	j := hammer.NewJITExecutor()
	return j, nil
}

// Close releases the arena and, for a JIT executor, its code page.
func (c *Context) Close() error {
	var errs []error
	if closer, ok := c.Exec.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Arena != nil {
		if err := c.Arena.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// totalBitFlips sums every probe's bit-flip count across every mapping
// a pattern has been tried at.
func totalBitFlips(hp *pattern.HammeringPattern) int {
	total := 0
	for _, m := range hp.Mappings {
		for _, probe := range m.BitFlips {
			total += len(probe)
		}
	}
	return total
}

// roundActsPerRefresh rounds a measured activations-per-refresh
// estimate to the nearest integer, clamped to at least 1.
func roundActsPerRefresh(v float64) int {
	n := int(math.Round(v))
	if n < 1 {
		return 1
	}
	return n
}
