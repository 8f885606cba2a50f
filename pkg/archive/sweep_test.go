package archive

import (
	"testing"

	"github.com/dramfuzz/dramfuzz/pkg/arena"
)

func TestCountTransitions(t *testing.T) {
	flips := []arena.BitFlip{
		// bit 0 flipped 0->1, bit 1 flipped 1->0.
		{Bitmask: 0b0000_0011, Corrupted: 0b0000_0001},
		// bit 2 flipped 0->1.
		{Bitmask: 0b0000_0100, Corrupted: 0b0000_0100},
	}

	zeroToOne, oneToZero := CountTransitions(flips)
	if zeroToOne != 2 {
		t.Errorf("zeroToOne = %d, want 2", zeroToOne)
	}
	if oneToZero != 1 {
		t.Errorf("oneToZero = %d, want 1", oneToZero)
	}
}

func TestCountTransitionsNoFlips(t *testing.T) {
	zeroToOne, oneToZero := CountTransitions(nil)
	if zeroToOne != 0 || oneToZero != 0 {
		t.Errorf("got (%d, %d), want (0, 0)", zeroToOne, oneToZero)
	}
}
