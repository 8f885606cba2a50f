// Package memcfg loads the declarative DRAM address-function description
// (spec.md §3, §6) and derives the DRAM_MTX / ADDR_MTX bit matrices used
// by pkg/dramaddr.
package memcfg

import (
	"encoding/json"
	"fmt"
	"os"
)

// MatrixOrder is the fixed bit-matrix dimension M. The reference
// implementation (and every config this package accepts) uses 30.
const MatrixOrder = 30

// BitDef is either a single address-bit index or a set of indices that
// are XOR-combined into one output bit. In JSON it is either an integer
// or an array of integers.
type BitDef []int

// UnmarshalJSON accepts `7` or `[6, 13]`.
func (b *BitDef) UnmarshalJSON(data []byte) error {
	var single int
	if err := json.Unmarshal(data, &single); err == nil {
		*b = BitDef{single}
		return nil
	}
	var multi []int
	if err := json.Unmarshal(data, &multi); err != nil {
		return fmt.Errorf("memcfg: bit definition must be an integer or array of integers: %w", err)
	}
	*b = BitDef(multi)
	return nil
}

// MarshalJSON round-trips single-element defs back to a bare integer,
// matching the input format documented in spec.md §6.
func (b BitDef) MarshalJSON() ([]byte, error) {
	if len(b) == 1 {
		return json.Marshal(b[0])
	}
	return json.Marshal([]int(b))
}

// mask returns the OR of 1<<idx for every index in the definition. A
// single-bit def sets one bit; a XOR-set def sets every member bit, so
// that the parity computation in the translator naturally XORs them.
func (b BitDef) mask() uint32 {
	var m uint32
	for _, idx := range b {
		m |= 1 << uint(idx)
	}
	return m
}

// Config is the memory-configuration document from spec.md §6.
type Config struct {
	Name string `json:"name"`

	Channels   uint64 `json:"channels"`
	Dimms      uint64 `json:"dimms"`
	Ranks      uint64 `json:"ranks"`
	TotalBanks uint64 `json:"total_banks"`

	MaxRows   uint64 `json:"max_rows"`
	Threshold uint64 `json:"threshold"`

	HammerRounds uint64 `json:"hammer_rounds"`
	DramaRounds  uint64 `json:"drama_rounds"`
	MemorySize   uint64 `json:"memory_size"`

	RowBits  []BitDef `json:"row_bits"`
	ColBits  []BitDef `json:"col_bits"`
	BankBits []BitDef `json:"bank_bits"`
}

// Load reads and parses a memory-configuration JSON file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("memcfg: reading %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("memcfg: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("memcfg: %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the one hard invariant a config must satisfy before
// matrices can be derived: the bit-definition counts must sum to M.
func (c *Config) Validate() error {
	n := len(c.RowBits) + len(c.ColBits) + len(c.BankBits)
	if n != MatrixOrder {
		return fmt.Errorf("%w: row_bits(%d) + col_bits(%d) + bank_bits(%d) = %d, want %d",
			ErrBitCountMismatch, len(c.RowBits), len(c.ColBits), len(c.BankBits), n, MatrixOrder)
	}
	return nil
}
