package hammer

import "github.com/dramfuzz/dramfuzz/pkg/cpuprim"

// Executor runs a Schedule once and reports how many Read ops it
// performed (its contribution to the total-activation budget).
type Executor interface {
	Run(body Schedule) (activations int, err error)
}

// InterpretedExecutor dispatches a Schedule op-by-op through
// pkg/cpuprim. It is slower per access than a jitted function — the
// dispatch loop itself perturbs timing, exactly the cost spec.md §4.F's
// "Synthesis" note warns about — but it is correct on any platform
// cpuprim supports and is what tests exercise.
type InterpretedExecutor struct {
	readByte  func(uintptr) byte
	flushLine func(uintptr)
	mfence    func()
}

// NewInterpretedExecutor builds an executor wired to the real amd64
// primitives.
func NewInterpretedExecutor() *InterpretedExecutor {
	return &InterpretedExecutor{
		readByte:  cpuprim.ReadByte,
		flushLine: cpuprim.FlushLine,
		mfence:    cpuprim.MemoryFence,
	}
}

// newFakeInterpretedExecutor builds an executor over injected
// primitives, for tests that need to observe dispatch order without
// amd64 hardware.
func newFakeInterpretedExecutor(readByte func(uintptr) byte, flushLine func(uintptr), mfence func()) *InterpretedExecutor {
	return &InterpretedExecutor{readByte: readByte, flushLine: flushLine, mfence: mfence}
}

// Run dispatches every Op in body in order. SyncBarrier Ops are not
// valid in a body Schedule (BuildSchedule never emits them) and are
// dispatched as a plain flush+read of every barrier address, without
// the timing comparison — callers that need the real busy-wait
// semantics use Engine.syncOnRefresh directly instead of routing it
// through an Executor.
func (e *InterpretedExecutor) Run(body Schedule) (int, error) {
	activations := 0
	for _, op := range body {
		switch op.Kind {
		case Read:
			_ = e.readByte(op.Addr)
			activations++
		case Flush:
			e.flushLine(op.Addr)
		case Fence:
			e.mfence()
		case SyncBarrier:
			for _, addr := range op.Barrier {
				e.flushLine(addr)
				_ = e.readByte(addr)
			}
			e.mfence()
		}
	}
	return activations, nil
}
