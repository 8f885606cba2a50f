package memcfg

import "errors"

// ErrBitCountMismatch is returned by Config.Validate when the bit
// definition lists do not sum to MatrixOrder.
var ErrBitCountMismatch = errors.New("memcfg: bit definition counts do not sum to matrix order")

// ErrSingularMatrix is returned by Derive when DRAM_MTX has no GF(2)
// inverse — an unusable configuration, fatal per spec.md §4.B step 3.
var ErrSingularMatrix = errors.New("memcfg: DRAM_MTX is singular over GF(2)")

// Derived holds the two M×M binary matrices and the shift/mask pairs
// computed from a Config, per spec.md §4.B.
type Derived struct {
	DramMtx [MatrixOrder]uint32 // virtual-addr bits -> bank|col|row
	AddrMtx [MatrixOrder]uint32 // bank|col|row -> virtual-addr bits

	BkShift, BkMask   uint
	ColShift, ColMask uint
	RowShift, RowMask uint

	// Bit widths of the bank, row and column fields (the lengths of the
	// config's bit lists), not the number of banks, rows or columns.
	NumBanks int
	NumRows  int
	NumCols  int
}

// Derive builds DRAM_MTX from the config's bit definitions (bank, then
// column, then row — MSB to LSB of the packed M-bit index, per spec.md
// §4.B step 2), inverts it over GF(2), and derives the shift/mask pairs.
func Derive(cfg *Config) (*Derived, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Derived{
		NumBanks: len(cfg.BankBits),
		NumCols:  len(cfg.ColBits),
		NumRows:  len(cfg.RowBits),
	}

	row := 0
	for _, b := range cfg.BankBits {
		d.DramMtx[row] = b.mask()
		row++
	}
	for _, b := range cfg.ColBits {
		d.DramMtx[row] = b.mask()
		row++
	}
	for _, b := range cfg.RowBits {
		d.DramMtx[row] = b.mask()
		row++
	}

	addrMtx, err := invertGF2(d.DramMtx)
	if err != nil {
		return nil, err
	}
	d.AddrMtx = addrMtx

	d.BkShift = uint(MatrixOrder - d.NumBanks)
	d.BkMask = (1 << uint(d.NumBanks)) - 1

	d.ColShift = uint(MatrixOrder - d.NumBanks - d.NumCols)
	d.ColMask = (1 << uint(d.NumCols)) - 1

	d.RowShift = uint(MatrixOrder - d.NumBanks - d.NumCols - d.NumRows) // always 0
	d.RowMask = (1 << uint(d.NumRows)) - 1

	return d, nil
}

// invertGF2 computes the GF(2) inverse of an M×M matrix stored as M rows
// of "which columns this row reads" bitmasks, under the packed-parity
// convention used by the translator: processing mtx[0] first and
// shifting left means mtx[0] ends up at the most-significant output bit.
//
// To invert under that convention we reorder rows so that row p of the
// working matrix D is mtx[M-1-p] (D then acts as an ordinary
// row-p-produces-output-bit-p matrix), run textbook full-pivot
// Gauss-Jordan elimination against an identity matrix, and reorder the
// result back: addrMtx[i] = inverse-row[M-1-i].
func invertGF2(mtx [MatrixOrder]uint32) ([MatrixOrder]uint32, error) {
	const n = MatrixOrder

	var d [n]uint32   // working copy, row p = mtx[n-1-p]
	var inv [n]uint32 // accumulates the inverse, row p = 1<<p initially
	for p := 0; p < n; p++ {
		d[p] = mtx[n-1-p]
		inv[p] = 1 << uint(p)
	}

	for col := 0; col < n; col++ {
		pivot := -1
		for r := col; r < n; r++ {
			if d[r]&(1<<uint(col)) != 0 {
				pivot = r
				break
			}
		}
		if pivot == -1 {
			return [n]uint32{}, ErrSingularMatrix
		}
		d[col], d[pivot] = d[pivot], d[col]
		inv[col], inv[pivot] = inv[pivot], inv[col]

		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			if d[r]&(1<<uint(col)) != 0 {
				d[r] ^= d[col]
				inv[r] ^= inv[col]
			}
		}
	}

	var addrMtx [n]uint32
	for p := 0; p < n; p++ {
		addrMtx[n-1-p] = inv[p]
	}
	return addrMtx, nil
}
