package arena

import (
	"testing"

	"github.com/dramfuzz/dramfuzz/pkg/dramaddr"
	"github.com/dramfuzz/dramfuzz/pkg/memcfg"
)

func testTranslator(t *testing.T) *dramaddr.Translator {
	t.Helper()
	cfg := &memcfg.Config{
		Name: "dual-rank-16-bank", Channels: 1, Dimms: 1, Ranks: 2, TotalBanks: 16,
		BankBits: []memcfg.BitDef{{6, 13}, {14, 18}, {15, 19}, {16, 20}, {17, 21}},
		ColBits: []memcfg.BitDef{
			{13}, {12}, {11}, {10}, {9}, {8}, {7}, {5}, {4}, {3}, {2}, {1}, {0},
		},
		RowBits: []memcfg.BitDef{
			{29}, {28}, {27}, {26}, {25}, {24}, {23}, {22}, {21}, {20}, {19}, {18},
		},
	}
	d, err := memcfg.Derive(cfg)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	return dramaddr.NewTranslator(d, 0x2000000000&^((1<<30)-1))
}

func newFakeArena(numPages int) *Arena {
	return &Arena{data: make([]byte, numPages*PageSize), base: 0x2000000000}
}

func TestSeedIsDeterministicPerPage(t *testing.T) {
	a := newFakeArena(3)
	a.Seed()

	for p := 0; p < 3; p++ {
		got := a.pageSlice(p)
		want := expectedPage(p)
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("page %d byte %d = %#x, want %#x", p, i, got[i], want[i])
			}
		}
	}
}

func TestVerifyCleanArenaYieldsNoFlips(t *testing.T) {
	a := newFakeArena(2)
	a.Seed()
	tr := testTranslator(t)

	flips := a.Verify(tr)
	if len(flips) != 0 {
		t.Fatalf("Verify on unmodified arena returned %d flips, want 0", len(flips))
	}
}

func TestVerifyDetectsAndRestoresSingleByteFlip(t *testing.T) {
	a := newFakeArena(2)
	a.Seed()
	tr := testTranslator(t)

	page := a.pageSlice(1)
	original := page[100]
	page[100] ^= 0x01

	flips := a.Verify(tr)
	if len(flips) != 1 {
		t.Fatalf("Verify detected %d flips, want 1", len(flips))
	}
	f := flips[0]
	if f.Bitmask != 0x01 {
		t.Errorf("Bitmask = %#x, want 0x01", f.Bitmask)
	}
	if f.Corrupted != original^0x01 {
		t.Errorf("Corrupted = %#x, want %#x", f.Corrupted, original^0x01)
	}

	// The byte must be restored so a second Verify pass is clean.
	if page[100] != original {
		t.Fatalf("byte not restored: got %#x, want %#x", page[100], original)
	}
	if flips2 := a.Verify(tr); len(flips2) != 0 {
		t.Fatalf("second Verify pass found %d flips after restore, want 0", len(flips2))
	}
}

func TestVerifyDetectsMultipleFlipsAcrossPages(t *testing.T) {
	a := newFakeArena(2)
	a.Seed()
	tr := testTranslator(t)

	a.pageSlice(0)[10] ^= 0xff
	a.pageSlice(1)[20] ^= 0x80

	flips := a.Verify(tr)
	if len(flips) != 2 {
		t.Fatalf("Verify detected %d flips, want 2", len(flips))
	}
}
