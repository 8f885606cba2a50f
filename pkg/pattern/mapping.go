package pattern

import (
	"math/rand"

	"github.com/google/uuid"

	"github.com/dramfuzz/dramfuzz/internal/randctx"
	"github.com/dramfuzz/dramfuzz/pkg/dramaddr"
)

// BankCounter is an explicit round-robin cursor over banks, replacing
// the reference's global bank_counter (spec.md §9's design note on
// avoiding global mutable state).
type BankCounter struct {
	numBanks int
	next     int
}

// NewBankCounter builds a counter over numBanks banks.
func NewBankCounter(numBanks int) *BankCounter { return &BankCounter{numBanks: numBanks} }

// Next returns the next bank in round-robin order and advances the
// counter by exactly one step, regardless of how many probes a driver
// configures per pattern.
func (b *BankCounter) Next() int {
	bank := b.next
	b.next = (b.next + 1) % b.numBanks
	return bank
}

// NewMapping assigns every aggressor appearing in aaps to a concrete
// DRAM row within one bank, per spec.md §4.E.2.
func NewMapping(p Params, rng *randctx.Pair, aaps []AAP, banks *BankCounter) *Mapping {
	bank := banks.Next()
	startRow := 0
	if p.StartRowMax > 0 {
		startRow = rng.Mapping.Intn(p.StartRowMax)
	}
	useSequential := rng.Mapping.Intn(2) == 0

	maxRowNo := p.MaxRowNo
	if maxRowNo <= 0 {
		maxRowNo = 1
	}

	rowOf := make(map[Aggressor]int)
	occupied := make(map[int]struct{})
	cursor := startRow

	totalAggs := 0
	for _, aap := range aaps {
		totalAggs += len(aap.Aggressors)
	}
	targetFresh := p.NumAggressors
	if targetFresh <= 0 {
		targetFresh = totalAggs
	}

	for _, aap := range aaps {
		for i, agg := range aap.Aggressors {
			if _, ok := rowOf[agg]; ok {
				continue // already assigned (re-use, e.g. by a step-3 extension AAP from Synthesize)
			}

			if i > 0 {
				prev := aap.Aggressors[i-1]
				rowOf[agg] = mod(rowOf[prev]+p.IntraDistance, maxRowNo)
				occupied[rowOf[agg]] = struct{}{}
				continue
			}

			freshProb := float64(targetFresh) / float64(maxInt(totalAggs, 1))
			if freshProb > 1 {
				freshProb = 1
			}

			if rng.Mapping.Float64() < freshProb || len(occupied) == 0 {
				cursor = mod(cursor+p.InterDistance, maxRowNo)
				row := cursor
				if !useSequential {
					row = mod(cursor+rng.Mapping.Intn(maxRowNo), maxRowNo)
					for attempt := 0; attempt < 7; attempt++ {
						if _, taken := occupied[row]; !taken {
							break
						}
						row = mod(cursor+rng.Mapping.Intn(maxRowNo), maxRowNo)
					}
				}
				rowOf[agg] = row
				occupied[row] = struct{}{}
			} else {
				rowOf[agg] = pickOccupied(occupied, rng.Mapping)
			}
		}
	}

	minRow, maxRow := minMaxKeys(occupied)

	aggToAddr := make(map[Aggressor]dramaddr.Addr, len(rowOf))
	for agg, row := range rowOf {
		aggToAddr[agg] = dramaddr.Addr{Bank: bank, Row: row, Col: 0}
	}

	victimRadius := p.VictimRadius
	if victimRadius <= 0 {
		victimRadius = DefaultVictimRadius
	}
	victims := make(map[dramaddr.Addr]struct{})
	for _, row := range distinctValues(rowOf) {
		for d := 1; d <= victimRadius; d++ {
			if row-d >= 0 {
				victims[dramaddr.Addr{Bank: bank, Row: row - d, Col: 0}] = struct{}{}
			}
			victims[dramaddr.Addr{Bank: bank, Row: row + d, Col: 0}] = struct{}{}
		}
	}
	for agg := range aggToAddr {
		delete(victims, aggToAddr[agg])
	}

	return &Mapping{
		ID:         uuid.New(),
		Bank:       bank,
		MinRow:     minRow,
		MaxRow:     maxRow,
		AggToAddr:  aggToAddr,
		VictimRows: victims,
	}
}

// ShiftMapping adds delta to the row field of every mapping entry whose
// aggressor is in subset (or every entry if subset is empty), per
// spec.md §4.E.3.
func ShiftMapping(m *Mapping, delta int, subset map[Aggressor]struct{}) {
	for agg, addr := range m.AggToAddr {
		if len(subset) > 0 {
			if _, ok := subset[agg]; !ok {
				continue
			}
		}
		addr.Row += delta
		m.AggToAddr[agg] = addr
	}
	m.MinRow += delta
	m.MaxRow += delta
}

// Remap translates every aggressor so the mapping's minimum row lands
// at newOrigin.Row, and overwrites the bank with newOrigin.Bank,
// preserving relative inter-aggressor distances.
func Remap(m *Mapping, newOrigin dramaddr.Addr) {
	delta := newOrigin.Row - m.MinRow
	for agg, addr := range m.AggToAddr {
		addr.Row += delta
		addr.Bank = newOrigin.Bank
		m.AggToAddr[agg] = addr
	}
	m.MinRow += delta
	m.MaxRow += delta
	m.Bank = newOrigin.Bank

	shiftedVictims := make(map[dramaddr.Addr]struct{}, len(m.VictimRows))
	for addr := range m.VictimRows {
		shiftedVictims[dramaddr.Addr{Bank: newOrigin.Bank, Row: addr.Row + delta, Col: addr.Col}] = struct{}{}
	}
	m.VictimRows = shiftedVictims
}

func mod(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minMaxKeys(set map[int]struct{}) (min, max int) {
	first := true
	for k := range set {
		if first {
			min, max = k, k
			first = false
			continue
		}
		if k < min {
			min = k
		}
		if k > max {
			max = k
		}
	}
	return
}

func distinctValues(rowOf map[Aggressor]int) []int {
	seen := make(map[int]struct{}, len(rowOf))
	var out []int
	for _, row := range rowOf {
		if _, ok := seen[row]; !ok {
			seen[row] = struct{}{}
			out = append(out, row)
		}
	}
	return out
}

func pickOccupied(occupied map[int]struct{}, r *rand.Rand) int {
	idx := r.Intn(len(occupied))
	i := 0
	for row := range occupied {
		if i == idx {
			return row
		}
		i++
	}
	return 0
}
