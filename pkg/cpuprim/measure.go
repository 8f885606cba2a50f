package cpuprim

// MeasureWindow bounds the accepted cycle counts for a single
// flush-flush-fence-read-read round. Samples outside the window are
// outliers (context switch, interrupt, TLB miss storm) and are retried
// rather than counted — the retry itself does not count toward rounds,
// per the §4.A contract.
type MeasureWindow struct {
	Lo, Hi uint64
}

// DefaultMeasureWindow is wide enough to admit both same-bank-same-row
// (cache/row-buffer hit) and same-bank-different-row (row conflict)
// timings on typical DDR3/DDR4 systems, while rejecting scheduler-noise
// outliers in the tens-of-thousands-of-cycles range.
var DefaultMeasureWindow = MeasureWindow{Lo: 1, Hi: 10_000}

// AccessTimer performs the timed flush/flush/fence/read/read loop that
// both the analyzer (component C) and the fuzzer driver depend on. It is
// exposed as a struct (rather than a bare function) so tests can swap in
// a deterministic source of readings.
type AccessTimer struct {
	Window MeasureWindow

	// readTSC, flush and fence are overridable for testing; they default
	// to the real amd64 primitives.
	readTSC func() uint64
	flush   func(uintptr)
	mfence  func()
	read    func(uintptr) byte
}

// NewAccessTimer builds a timer wired to the real hardware primitives.
func NewAccessTimer() *AccessTimer {
	return &AccessTimer{
		Window:  DefaultMeasureWindow,
		readTSC: ReadTSC,
		flush:   FlushLine,
		mfence:  MemoryFence,
		read:    ReadByte,
	}
}

// NewFakeAccessTimer builds a timer with injected primitives, for use by
// other packages' tests that need deterministic timing without amd64
// hardware (e.g. pkg/analyzer's convergence tests).
func NewFakeAccessTimer(window MeasureWindow, readTSC func() uint64, flush func(uintptr), mfence func(), read func(uintptr) byte) *AccessTimer {
	return &AccessTimer{
		Window:  window,
		readTSC: readTSC,
		flush:   flush,
		mfence:  mfence,
		read:    read,
	}
}

// MeasureAccess returns the mean cycle count, over rounds iterations, of
// the loop: flush a; flush b; fence; read a; read b. Each iteration
// outside [Window.Lo, Window.Hi] is discarded and re-attempted; the
// retry does not count against rounds.
func (t *AccessTimer) MeasureAccess(a, b uintptr, rounds int) float64 {
	if rounds <= 0 {
		return 0
	}
	var sum uint64
	counted := 0
	// Bound total attempts so a pathologically noisy environment cannot
	// spin forever; 50x the requested rounds is generous slack for
	// outlier retries while still terminating.
	maxAttempts := rounds * 50
	for attempts := 0; counted < rounds && attempts < maxAttempts; attempts++ {
		t.flush(a)
		t.flush(b)
		t.mfence()
		start := t.readTSC()
		_ = t.read(a)
		_ = t.read(b)
		end := t.readTSC()
		delta := end - start
		if delta < t.Window.Lo || delta > t.Window.Hi {
			continue
		}
		sum += delta
		counted++
	}
	if counted == 0 {
		return 0
	}
	return float64(sum) / float64(counted)
}
