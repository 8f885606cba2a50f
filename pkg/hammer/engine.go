package hammer

import (
	"time"

	"github.com/dramfuzz/dramfuzz/pkg/cpuprim"
)

// Engine runs the state machine from spec.md §4.F's hammer-engine
// responsibility list against a set of mapped addresses, dispatching
// the hammered body through an Executor while handling refresh-interval
// synchronization itself (that part is inherently timing-dependent and
// cannot be expressed as static Schedule data).
type Engine struct {
	Exec   Executor
	Params Params

	readTSC func() uint64
	flush   func(uintptr)
	mfence  func()
	read    func(uintptr) byte
}

// NewEngine builds an Engine wired to the real amd64 timing primitives.
func NewEngine(exec Executor, params Params) *Engine {
	return &Engine{
		Exec:    exec,
		Params:  params,
		readTSC: cpuprim.ReadTSC,
		flush:   cpuprim.FlushLine,
		mfence:  cpuprim.MemoryFence,
		read:    cpuprim.ReadByte,
	}
}

// newFakeEngine builds an Engine over injected primitives, for tests.
func newFakeEngine(exec Executor, params Params, readTSC func() uint64, flush func(uintptr), mfence func(), read func(uintptr) byte) *Engine {
	return &Engine{Exec: exec, Params: params, readTSC: readTSC, flush: flush, mfence: mfence, read: read}
}

// Hammer runs steps 1-6 of spec.md §4.F against head/body/tail (already
// split out of a mapping's resolved access list via
// SplitSyncAggressors) until the activation budget is consumed, and
// returns the total number of hammering activations performed.
func (e *Engine) Hammer(head, body, tail []uintptr) int {
	if e.Params.Jitter.PreHammerSleep > 0 {
		time.Sleep(e.Params.Jitter.PreHammerSleep)
	}

	for _, a := range head {
		_ = e.read(a)
	}

	numSync := e.Params.Jitter.NumSyncAggressors
	var fullBodySchedule Schedule
	if !e.Params.Jitter.SyncEachRef || e.Params.ActsPerTREFI <= 0 {
		fullBodySchedule = BuildSchedule(body, e.Params.Jitter)
	}

	total := 0
	for total < e.Params.TotalActivations {
		e.syncOnRefresh(head)

		if e.Params.Jitter.SyncEachRef && e.Params.ActsPerTREFI > 0 {
			for start := 0; start < len(body); start += e.Params.ActsPerTREFI {
				end := start + e.Params.ActsPerTREFI
				if end > len(body) {
					end = len(body)
				}
				chunk := BuildSchedule(body[start:end], e.Params.Jitter)
				n, _ := e.Exec.Run(chunk)
				total += n

				syncFrom := end
				syncTo := syncFrom + numSync
				if syncTo > len(body) {
					syncTo = len(body)
				}
				if syncFrom < syncTo {
					e.syncOnRefresh(body[syncFrom:syncTo])
				}
			}
		} else {
			n, _ := e.Exec.Run(fullBodySchedule)
			total += n
		}

		e.mfence()
		e.syncOnRefresh(tail)
	}

	return total
}

// syncOnRefresh busy-waits until flushing, fencing, and re-reading
// barrier takes longer than Params.RefreshThreshold cycles — the
// signal that the memory controller just issued a refresh (spec.md
// §4.F step 2 / the SYNC_HEAD, SYNC_MID, SYNC_TAIL states).
func (e *Engine) syncOnRefresh(barrier []uintptr) {
	if len(barrier) == 0 {
		return
	}
	for {
		for _, a := range barrier {
			e.flush(a)
		}
		e.mfence()

		start := e.readTSC()
		for _, a := range barrier {
			_ = e.read(a)
		}
		end := e.readTSC()

		if float64(end-start) > e.Params.RefreshThreshold {
			return
		}
	}
}
