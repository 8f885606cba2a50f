package archive

import "github.com/dramfuzz/dramfuzz/pkg/arena"

// MappingSweep is one mapping's row-by-row sweep result within a
// pattern sweep (spec.md §6's "sweeps" array element).
type MappingSweep struct {
	MappingID     string          `json:"mapping_id"`
	PositiveShifts int            `json:"positive_shifts"`
	ShiftsSwept    int            `json:"shifts_swept"`
	ZeroToOne      int            `json:"zero_to_one"`
	OneToZero      int            `json:"one_to_zero"`
	BitFlips       []arena.BitFlip `json:"bit_flips"`
}

// PatternSweep groups every mapping sweep performed for one pattern.
type PatternSweep struct {
	PatternID string         `json:"pattern_id"`
	Mappings  []MappingSweep `json:"mappings"`
}

// SweepSummary is the top-level sweep-summary document (spec.md §6).
type SweepSummary struct {
	Metadata Metadata       `json:"metadata"`
	Sweeps   []PatternSweep `json:"sweeps"`
}

// CountTransitions tallies 0→1 and 1→0 bit-flip transitions from a
// bitmask/corrupted-byte pair: a flip's Bitmask marks which bits
// differ, and Corrupted holds the post-flip byte, so a flipped bit is
// 0→1 where Corrupted has it set and 1→0 where it doesn't.
func CountTransitions(flips []arena.BitFlip) (zeroToOne, oneToZero int) {
	for _, f := range flips {
		for bit := 0; bit < 8; bit++ {
			mask := byte(1) << uint(bit)
			if f.Bitmask&mask == 0 {
				continue
			}
			if f.Corrupted&mask != 0 {
				zeroToOne++
			} else {
				oneToZero++
			}
		}
	}
	return
}
