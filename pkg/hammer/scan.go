package hammer

import (
	"errors"

	"github.com/dramfuzz/dramfuzz/pkg/arena"
	"github.com/dramfuzz/dramfuzz/pkg/dramaddr"
	"github.com/dramfuzz/dramfuzz/pkg/pattern"
)

// ErrNoVictimRows is returned when a mapping has an empty victim set —
// nothing to scan, per spec.md §4.F's "Bit-flip scan" error list.
var ErrNoVictimRows = errors.New("hammer: mapping has no victim rows")

// ScanVictims re-verifies every victim row of m against its seeded
// contents (one page per row) after a hammer run, appends the detected
// flips as a new probe slot to m.BitFlips, and returns them.
func ScanVictims(a *arena.Arena, m *pattern.Mapping, translator *dramaddr.Translator) ([]arena.BitFlip, error) {
	if len(m.VictimRows) == 0 {
		return nil, ErrNoVictimRows
	}

	var flips []arena.BitFlip
	for victim := range m.VictimRows {
		virt := translator.ToVirtual(victim)
		found, err := a.VerifyAt(virt, translator)
		if err != nil {
			return nil, err
		}
		flips = append(flips, found...)
	}

	m.BitFlips = append(m.BitFlips, flips)
	return flips, nil
}
