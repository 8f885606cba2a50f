package pattern

import (
	"testing"

	"github.com/dramfuzz/dramfuzz/internal/randctx"
)

func TestEvenDivisors(t *testing.T) {
	got := EvenDivisors(16, 4)
	want := map[int]bool{4: true, 8: true, 16: true}
	for _, d := range got {
		if !want[d] {
			t.Errorf("EvenDivisors(16,4) unexpected divisor %d", d)
		}
		if d < 4 || 16%d != 0 {
			t.Errorf("EvenDivisors(16,4) invalid divisor %d", d)
		}
	}
	if len(got) == 0 {
		t.Fatal("EvenDivisors(16,4) returned nothing")
	}
}

func TestAllowedMultipliers(t *testing.T) {
	got := allowedMultipliers(16, 4)
	want := []int{1, 2, 4}
	if len(got) != len(want) {
		t.Fatalf("allowedMultipliers = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("allowedMultipliers = %v, want %v", got, want)
		}
	}
}

// TestSynthesizeSmallestCase runs the smallest case: base_period=4,
// total_activations=4, N=2, amplitude=1. The first AAP fills positions
// 0 and 1 and slot 2 gets an AAP of its own, so the whole stream is
// filled.
func TestSynthesizeSmallestCase(t *testing.T) {
	p := Params{
		NSided:       randctx.NumSidedDistribution{Values: []int{2}, Weights: []int{1}},
		AmplitudeMax: 1,
	}
	rng := randctx.New(1, 1)

	stream, aaps := Synthesize(p, rng, 4, 4)

	if len(stream) != 4 {
		t.Fatalf("stream length = %d, want 4", len(stream))
	}
	for i, a := range stream {
		if a == Placeholder {
			t.Fatalf("stream[%d] left as placeholder", i)
		}
	}
	if len(aaps) == 0 {
		t.Fatal("expected at least one AAP")
	}
}

func TestSynthesizeFillsEveryPosition(t *testing.T) {
	p := Params{}
	rng := randctx.New(42, 7)

	for trial := 0; trial < 20; trial++ {
		stream, _ := Synthesize(p, rng, 8, 128)
		for i, a := range stream {
			if a == Placeholder {
				t.Fatalf("trial %d: stream[%d] left as placeholder", trial, i)
			}
		}
	}
}

func TestNewHammeringPatternInvariants(t *testing.T) {
	p := Params{ActsPerRefresh: 16, NumRefreshIntervals: 4}
	rng := randctx.New(3, 3)

	hp := NewHammeringPattern(p, rng)

	if hp.TotalActivations != 64 {
		t.Fatalf("TotalActivations = %d, want 64", hp.TotalActivations)
	}
	if hp.BasePeriod%2 != 0 || hp.BasePeriod < 4 {
		t.Fatalf("BasePeriod = %d, want an even number >= 4", hp.BasePeriod)
	}
	if hp.TotalActivations%hp.BasePeriod != 0 {
		t.Fatalf("BasePeriod %d does not divide TotalActivations %d", hp.BasePeriod, hp.TotalActivations)
	}
	for _, aap := range hp.AAPs {
		if aap.Frequency%hp.BasePeriod != 0 {
			t.Errorf("AAP frequency %d is not a multiple of base period %d", aap.Frequency, hp.BasePeriod)
		}
	}
	for i, a := range hp.AccessStream {
		if a == Placeholder {
			t.Fatalf("AccessStream[%d] left as placeholder", i)
		}
	}
}
