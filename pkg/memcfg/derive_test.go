package memcfg

import "testing"

// dualRankConfig reproduces the dual-rank DDR4 address function shipped
// in the reference implementation's hardcoded memory configuration table
// (one channel, one DIMM, two ranks, 16 banks): 5 XOR-combined bank
// bits, 13 single column bits (address bit 6 is claimed by the bank
// function and excluded from the column list), and 12 single row bits.
func dualRankConfig() *Config {
	return &Config{
		Name:       "dual-rank-16-bank",
		Channels:   1,
		Dimms:      1,
		Ranks:      2,
		TotalBanks: 16,
		BankBits: []BitDef{
			{6, 13}, {14, 18}, {15, 19}, {16, 20}, {17, 21},
		},
		ColBits: []BitDef{
			{13}, {12}, {11}, {10}, {9}, {8}, {7}, {5}, {4}, {3}, {2}, {1}, {0},
		},
		RowBits: []BitDef{
			{29}, {28}, {27}, {26}, {25}, {24}, {23}, {22}, {21}, {20}, {19}, {18},
		},
	}
}

func TestValidateBitCountMismatch(t *testing.T) {
	cfg := dualRankConfig()
	cfg.RowBits = cfg.RowBits[:len(cfg.RowBits)-1]
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected ErrBitCountMismatch")
	}
}

func TestDeriveShiftsAndMasks(t *testing.T) {
	d, err := Derive(dualRankConfig())
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if d.BkShift != 25 || d.BkMask != 0x1f {
		t.Fatalf("bank shift/mask = %d/%x, want 25/0x1f", d.BkShift, d.BkMask)
	}
	if d.ColShift != 12 || d.ColMask != 0x1fff {
		t.Fatalf("col shift/mask = %d/%x, want 12/0x1fff", d.ColShift, d.ColMask)
	}
	if d.RowShift != 0 || d.RowMask != 0xfff {
		t.Fatalf("row shift/mask = %d/%x, want 0/0xfff", d.RowShift, d.RowMask)
	}
}

// TestDeriveAddrMtxIsInverse cross-checks the derived ADDR_MTX against
// the known-correct inverse shipped alongside the same DRAM_MTX in the
// reference implementation (hand-verified independently of this code via
// Gauss-Jordan elimination over GF(2)).
func TestDeriveAddrMtxIsInverse(t *testing.T) {
	want := [MatrixOrder]uint32{
		0b000000000000000000100000000000,
		0b000000000000000000010000000000,
		0b000000000000000000001000000000,
		0b000000000000000000000100000000,
		0b000000000000000000000010000000,
		0b000000000000000000000001000000,
		0b000000000000000000000000100000,
		0b000000000000000000000000010000,
		0b000000000000000000000000001000,
		0b000000000000000000000000000100,
		0b000000000000000000000000000010,
		0b000000000000000000000000000001,
		0b000010000000000000000000001000,
		0b000100000000000000000000000100,
		0b001000000000000000000000000010,
		0b010000000000000000000000000001,
		0b000001000000000000000000000000,
		0b000000100000000000000000000000,
		0b000000010000000000000000000000,
		0b000000001000000000000000000000,
		0b000000000100000000000000000000,
		0b000000000010000000000000000000,
		0b000000000001000000000000000000,
		0b100001000000000000000000000000,
		0b000000000000100000000000000000,
		0b000000000000010000000000000000,
		0b000000000000001000000000000000,
		0b000000000000000100000000000000,
		0b000000000000000010000000000000,
		0b000000000000000001000000000000,
	}

	d, err := Derive(dualRankConfig())
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if d.AddrMtx != want {
		t.Fatalf("AddrMtx mismatch:\ngot  %030b...\nwant %030b...", d.AddrMtx[0], want[0])
	}
}

func TestDeriveSingularMatrix(t *testing.T) {
	cfg := dualRankConfig()
	// Duplicate the first bank bit definition across two bank rows: the
	// resulting DRAM_MTX has two identical rows and is singular.
	cfg.BankBits[1] = cfg.BankBits[0]
	if _, err := Derive(cfg); err == nil {
		t.Fatal("expected ErrSingularMatrix for a matrix with duplicate rows")
	}
}

func TestBitDefJSONRoundTrip(t *testing.T) {
	single := BitDef{7}
	data, err := single.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "7" {
		t.Fatalf("single BitDef marshaled as %s, want 7", data)
	}
	var back BitDef
	if err := back.UnmarshalJSON(data); err != nil {
		t.Fatal(err)
	}
	if len(back) != 1 || back[0] != 7 {
		t.Fatalf("round-tripped single BitDef = %v", back)
	}

	xorSet := BitDef{6, 13}
	data, err = xorSet.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	var back2 BitDef
	if err := back2.UnmarshalJSON(data); err != nil {
		t.Fatal(err)
	}
	if len(back2) != 2 || back2[0] != 6 || back2[1] != 13 {
		t.Fatalf("round-tripped XOR BitDef = %v", back2)
	}
}
