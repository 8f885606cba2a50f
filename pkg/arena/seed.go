package arena

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dramfuzz/dramfuzz/pkg/dramaddr"
)

// lcgSeed reseeds a 32-bit linear-congruential generator from a page
// offset, so the expected contents of any page are a pure function of
// its offset (spec.md §4.D). Constants are Numerical-Recipes' classic
// LCG parameters.
func lcgSeed(pageOffset int64) uint32 {
	return uint32(pageOffset * int64(PageSize))
}

func lcgNext(state uint32) uint32 {
	return state*1664525 + 1013904223
}

// Seed walks the arena page by page, reseeding the LCG from each page's
// offset and writing successive 32-bit little-endian words across it.
func (a *Arena) Seed() {
	for p := 0; p < a.numPages(); p++ {
		page := a.pageSlice(p)
		state := lcgSeed(int64(p))
		for off := 0; off < len(page); off += 4 {
			state = lcgNext(state)
			binary.LittleEndian.PutUint32(page[off:off+4], state)
		}
	}
}

// expectedPage renders the deterministic contents of page pageIdx
// without touching the arena, for use by Verify.
func expectedPage(pageIdx int) []byte {
	buf := make([]byte, PageSize)
	state := lcgSeed(int64(pageIdx))
	for off := 0; off < PageSize; off += 4 {
		state = lcgNext(state)
		binary.LittleEndian.PutUint32(buf[off:off+4], state)
	}
	return buf
}

// VerifyAt checks the single page containing virt, restoring any
// differing bytes in place exactly like Verify. It is used by the
// hammer engine's bit-flip scan, which only needs to re-check the
// handful of victim rows a pattern actually hammered rather than the
// whole arena (spec.md §4.F's "Bit-flip scan": "one page per row").
func (a *Arena) VerifyAt(virt uintptr, translator *dramaddr.Translator) ([]BitFlip, error) {
	if virt < a.base || virt >= a.base+uintptr(len(a.data)) {
		return nil, fmt.Errorf("arena: address %#x out of range", virt)
	}
	pageIdx := int((virt - a.base) / PageSize)
	return a.verifyPage(pageIdx, translator), nil
}

// Verify compares every page against its reseeded expected contents
// with a fast byte-level compare; on a page mismatch it walks 4 bytes
// at a time, then 1 byte, emitting a BitFlip for every differing byte
// and restoring the original value in place so later checks do not
// cascade. translator converts the flat byte offset of a mismatch into
// a DRAM address for the report.
func (a *Arena) Verify(translator *dramaddr.Translator) []BitFlip {
	var flips []BitFlip
	for p := 0; p < a.numPages(); p++ {
		flips = append(flips, a.verifyPage(p, translator)...)
	}
	return flips
}

// verifyPage is the shared fast-path-compare-then-walk logic behind
// Verify and VerifyAt.
func (a *Arena) verifyPage(pageIdx int, translator *dramaddr.Translator) []BitFlip {
	var flips []BitFlip
	now := time.Now()

	page := a.pageSlice(pageIdx)
	want := expectedPage(pageIdx)
	if bytes.Equal(page, want) {
		return nil
	}

	base := pageIdx * PageSize
	for off := 0; off < PageSize; off += 4 {
		if bytes.Equal(page[off:off+4], want[off:off+4]) {
			continue
		}
		for b := 0; b < 4; b++ {
			if page[off+b] == want[off+b] {
				continue
			}
			virt := a.base + uintptr(base+off+b)
			flips = append(flips, BitFlip{
				Addr:      translator.ToDRAM(virt),
				Bitmask:   want[off+b] ^ page[off+b],
				Corrupted: page[off+b],
				Observed:  now,
			})
			page[off+b] = want[off+b]
		}
	}
	return flips
}

