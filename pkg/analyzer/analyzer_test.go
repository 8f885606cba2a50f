package analyzer

import (
	"errors"
	"testing"

	"github.com/dramfuzz/dramfuzz/pkg/cpuprim"
	"github.com/dramfuzz/dramfuzz/pkg/dramaddr"
	"github.com/dramfuzz/dramfuzz/pkg/memcfg"
)

func dualRankConfig() *memcfg.Config {
	return &memcfg.Config{
		Name: "dual-rank-16-bank", Channels: 1, Dimms: 1, Ranks: 2, TotalBanks: 16,
		BankBits: []memcfg.BitDef{{6, 13}, {14, 18}, {15, 19}, {16, 20}, {17, 21}},
		ColBits: []memcfg.BitDef{
			{13}, {12}, {11}, {10}, {9}, {8}, {7}, {5}, {4}, {3}, {2}, {1}, {0},
		},
		RowBits: []memcfg.BitDef{
			{29}, {28}, {27}, {26}, {25}, {24}, {23}, {22}, {21}, {20}, {19}, {18},
		},
	}
}

func newTestTranslator(t *testing.T) *dramaddr.Translator {
	t.Helper()
	d, err := memcfg.Derive(dualRankConfig())
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	return dramaddr.NewTranslator(d, 0x2000000000&^((1<<30)-1))
}

// fakeDeltaTimer returns a timer whose MeasureAccess(.., rounds=1) calls
// consume one latency value per call from deltas, cycling once
// exhausted, so a test can script an exact boundary-crossing cadence.
func fakeDeltaTimer(deltas []uint64) *cpuprim.AccessTimer {
	idx := 0
	toggle := false
	var cur uint64
	readTSC := func() uint64 {
		if !toggle {
			cur = deltas[idx%len(deltas)]
			idx++
			toggle = true
			return 0
		}
		toggle = false
		return cur
	}
	return cpuprim.NewFakeAccessTimer(
		cpuprim.MeasureWindow{Lo: 0, Hi: 10_000},
		readTSC,
		func(uintptr) {},
		func() {},
		func(uintptr) byte { return 0 },
	)
}

// TestCountActsPerRefreshConverges scripts a perfectly regular cadence
// (3 sub-boundary probes then 1 boundary-crossing probe, repeating) so
// the per-interval count is always 4 and the running standard deviation
// is zero from the first sample onward.
func TestCountActsPerRefreshConverges(t *testing.T) {
	var deltas []uint64
	for i := 0; i < 200; i++ {
		deltas = append(deltas, 50, 50, 50, 1500)
	}

	timer := fakeDeltaTimer(deltas)
	trans := newTestTranslator(t)
	a := New(timer, trans, &Params{
		WarmupSkip:        2,
		SampleEvery:       3,
		ConvergenceStdDev: 3.0,
		MaxRounds:         10_000,
		RefreshThreshold:  1000,
		CalibrationRounds: 1,
	})

	got, err := a.CountActsPerRefresh(0)
	if err != nil {
		t.Fatalf("CountActsPerRefresh: %v", err)
	}
	if got != 8 {
		t.Fatalf("CountActsPerRefresh = %v, want 8 (2 * 4)", got)
	}
}

// TestCountActsPerRefreshFailsToConverge scripts a cadence with no
// boundary crossings at all (every latency stays under threshold), so
// no per-interval sample is ever collected and convergence cannot
// succeed within the round budget.
func TestCountActsPerRefreshFailsToConverge(t *testing.T) {
	deltas := []uint64{50, 60, 40, 55}
	timer := fakeDeltaTimer(deltas)
	trans := newTestTranslator(t)
	a := New(timer, trans, &Params{
		WarmupSkip:        2,
		SampleEvery:       3,
		ConvergenceStdDev: 3.0,
		MaxRounds:         500,
		RefreshThreshold:  1000,
		CalibrationRounds: 1,
	})

	_, err := a.CountActsPerRefresh(0)
	if !errors.Is(err, ErrConvergenceFailed) {
		t.Fatalf("expected ErrConvergenceFailed, got %v", err)
	}
}

func TestCalibrateThreshold(t *testing.T) {
	deltas := []uint64{123}
	timer := fakeDeltaTimer(deltas)
	trans := newTestTranslator(t)
	a := New(timer, trans, nil)

	got := a.CalibrateThreshold(0)
	if got != 123 {
		t.Fatalf("CalibrateThreshold = %v, want 123", got)
	}
}

func TestSameBankPairDifferentRows(t *testing.T) {
	trans := newTestTranslator(t)
	a := New(cpuprim.NewAccessTimer(), trans, nil)
	x, y := a.SameBankPair(3)
	bx := trans.ToDRAM(x)
	by := trans.ToDRAM(y)
	if bx.Bank != by.Bank {
		t.Fatalf("SameBankPair returned different banks: %d vs %d", bx.Bank, by.Bank)
	}
	if bx.Row == by.Row {
		t.Fatalf("SameBankPair returned the same row: %d", bx.Row)
	}
}
