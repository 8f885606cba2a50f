package hammer

import (
	"testing"

	"github.com/dramfuzz/dramfuzz/pkg/arena"
	"github.com/dramfuzz/dramfuzz/pkg/dramaddr"
	"github.com/dramfuzz/dramfuzz/pkg/pattern"
)

func TestScanVictimsNoVictimRows(t *testing.T) {
	m := &pattern.Mapping{}
	_, err := ScanVictims(nil, m, nil)
	if err != ErrNoVictimRows {
		t.Fatalf("err = %v, want ErrNoVictimRows", err)
	}
}

func TestScanVictimsDetectsAndRestoresFlip(t *testing.T) {
	trans := newTestTranslatorForHammer(t)
	victim := dramaddr.Addr{Bank: 0, Row: 0, Col: 0}

	data := make([]byte, arena.PageSize*2)
	a := arena.NewFakeArena(testBaseMSB, data)
	a.Seed()

	virt := trans.ToVirtual(victim)
	off := virt - a.Base()
	data[off] ^= 0xFF

	m := &pattern.Mapping{VictimRows: map[dramaddr.Addr]struct{}{victim: {}}}

	flips, err := ScanVictims(a, m, trans)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(flips) != 1 {
		t.Fatalf("len(flips) = %d, want 1", len(flips))
	}
	if flips[0].Addr != victim {
		t.Errorf("flips[0].Addr = %v, want %v", flips[0].Addr, victim)
	}
	if len(m.BitFlips) != 1 || len(m.BitFlips[0]) != 1 {
		t.Fatalf("m.BitFlips = %v, want one probe slot with one flip", m.BitFlips)
	}

	flips2, err := ScanVictims(a, m, trans)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(flips2) != 0 {
		t.Fatalf("second scan found %d flips, want 0 (VerifyAt restores in place)", len(flips2))
	}
}

func TestScanVictimsMultipleRows(t *testing.T) {
	trans := newTestTranslatorForHammer(t)
	v1 := dramaddr.Addr{Bank: 0, Row: 0, Col: 0}
	v2 := dramaddr.Addr{Bank: 0, Row: 0, Col: 4096}

	data := make([]byte, arena.PageSize*3)
	a := arena.NewFakeArena(testBaseMSB, data)
	a.Seed()

	for _, v := range []dramaddr.Addr{v1, v2} {
		virt := trans.ToVirtual(v)
		data[virt-a.Base()] ^= 0xFF
	}

	m := &pattern.Mapping{VictimRows: map[dramaddr.Addr]struct{}{v1: {}, v2: {}}}
	flips, err := ScanVictims(a, m, trans)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(flips) != 2 {
		t.Fatalf("len(flips) = %d, want 2", len(flips))
	}
}
