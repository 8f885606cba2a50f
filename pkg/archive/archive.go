// Package archive defines the JSON wire schemas for a fuzzing run's
// pattern archive and sweep summary (spec.md §6), plus an internal gob
// checkpoint format for resuming an interrupted run. It holds the
// conversion between the wire schema and pkg/pattern's in-memory types,
// keeping the two decoupled the way the teacher keeps pkg/result's Rule
// table separate from pkg/inst's instruction encoding.
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dramfuzz/dramfuzz/pkg/arena"
	"github.com/dramfuzz/dramfuzz/pkg/dramaddr"
	"github.com/dramfuzz/dramfuzz/pkg/hammer"
	"github.com/dramfuzz/dramfuzz/pkg/memcfg"
	"github.com/dramfuzz/dramfuzz/pkg/pattern"
)

// MemConfigSummary is the subset of a memcfg.Config recorded alongside
// an archive so the archive is self-describing without embedding the
// full bit-definition matrices.
type MemConfigSummary struct {
	Name       string `json:"name"`
	Channels   uint64 `json:"channels"`
	Dimms      uint64 `json:"dimms"`
	Ranks      uint64 `json:"ranks"`
	TotalBanks uint64 `json:"total_banks"`
	MaxRows    uint64 `json:"max_rows"`
	Threshold  uint64 `json:"threshold"`
}

// SummarizeConfig extracts a MemConfigSummary from a loaded memcfg.Config.
func SummarizeConfig(cfg *memcfg.Config) MemConfigSummary {
	return MemConfigSummary{
		Name: cfg.Name, Channels: cfg.Channels, Dimms: cfg.Dimms, Ranks: cfg.Ranks,
		TotalBanks: cfg.TotalBanks, MaxRows: cfg.MaxRows, Threshold: cfg.Threshold,
	}
}

// Metadata is the common header of both the pattern archive and the
// sweep-summary documents.
type Metadata struct {
	RunID     string           `json:"run_id"`
	StartTime time.Time        `json:"start_time"`
	EndTime   time.Time        `json:"end_time"`
	MemConfig MemConfigSummary `json:"memory_config"`
}

// AAP is the wire form of pattern.AAP.
type AAP struct {
	Aggressors  []int32 `json:"aggressors"`
	Frequency   int     `json:"frequency"`
	Amplitude   int     `json:"amplitude"`
	StartOffset int     `json:"start_offset"`
}

// Mapping is the wire form of pattern.Mapping.
type Mapping struct {
	ID                   string                  `json:"id"`
	AggressorToAddr      map[string]dramaddr.Addr `json:"aggressor_to_addr"`
	BitFlips             [][]arena.BitFlip        `json:"bit_flips"`
	MinRow               int                      `json:"min_row"`
	MaxRow               int                      `json:"max_row"`
	BankNo               int                      `json:"bank_no"`
	ReproducibilityScore float64                  `json:"reproducibility_score"`
	Jitter               hammer.JitterParams      `json:"jitter"`
}

// Pattern is the wire form of pattern.HammeringPattern.
type Pattern struct {
	ID                  string    `json:"id"`
	BasePeriod          int       `json:"base_period"`
	MaxPeriod           int       `json:"max_period"`
	TotalActivations    int       `json:"total_activations"`
	NumRefreshIntervals int       `json:"num_refresh_intervals"`
	IsLocationDependent bool      `json:"is_location_dependent"`
	AccessIDs           []int32   `json:"access_ids"`
	AggAccessPatterns   []AAP     `json:"agg_access_patterns"`
	AddressMappings     []Mapping `json:"address_mappings"`
}

// Archive is the top-level pattern-archive document (spec.md §6).
type Archive struct {
	Metadata          Metadata  `json:"metadata"`
	HammeringPatterns []Pattern `json:"hammering_patterns"`
}

// FromPattern converts an in-memory HammeringPattern into its wire form.
func FromPattern(hp *pattern.HammeringPattern) Pattern {
	ids := distinctAggressors(hp.AccessStream)

	aaps := make([]AAP, len(hp.AAPs))
	for i, a := range hp.AAPs {
		aggs := make([]int32, len(a.Aggressors))
		for j, ag := range a.Aggressors {
			aggs[j] = int32(ag)
		}
		aaps[i] = AAP{Aggressors: aggs, Frequency: a.Frequency, Amplitude: a.Amplitude, StartOffset: a.StartOffset}
	}

	mappings := make([]Mapping, len(hp.Mappings))
	for i, m := range hp.Mappings {
		mappings[i] = fromMapping(m)
	}

	return Pattern{
		ID:                  hp.ID.String(),
		BasePeriod:          hp.BasePeriod,
		MaxPeriod:           hp.MaxPeriod,
		TotalActivations:    hp.TotalActivations,
		NumRefreshIntervals: hp.NumRefreshIntervals,
		IsLocationDependent: hp.IsLocationDependent,
		AccessIDs:           ids,
		AggAccessPatterns:   aaps,
		AddressMappings:     mappings,
	}
}

func fromMapping(m *pattern.Mapping) Mapping {
	addrs := make(map[string]dramaddr.Addr, len(m.AggToAddr))
	for agg, addr := range m.AggToAddr {
		addrs[strconv.Itoa(int(agg))] = addr
	}
	return Mapping{
		ID:                   m.ID.String(),
		AggressorToAddr:      addrs,
		BitFlips:             m.BitFlips,
		MinRow:               m.MinRow,
		MaxRow:               m.MaxRow,
		BankNo:               m.Bank,
		ReproducibilityScore: m.ReproducibilityScore,
		Jitter:               m.Jitter,
	}
}

// ToPattern reconstructs an in-memory HammeringPattern from its wire
// form, rebuilding the access stream deterministically from the
// archived AAPs (spec.md §4.G.3's "restore parameters from the
// pattern's stored fields") rather than re-synthesizing it.
func ToPattern(p Pattern) (*pattern.HammeringPattern, error) {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return nil, fmt.Errorf("archive: pattern id %q: %w", p.ID, err)
	}

	aaps := make([]pattern.AAP, len(p.AggAccessPatterns))
	for i, a := range p.AggAccessPatterns {
		aggs := make([]pattern.Aggressor, len(a.Aggressors))
		for j, ag := range a.Aggressors {
			aggs[j] = pattern.Aggressor(ag)
		}
		aaps[i] = pattern.AAP{Aggressors: aggs, Frequency: a.Frequency, Amplitude: a.Amplitude, StartOffset: a.StartOffset}
	}

	mappings := make([]*pattern.Mapping, len(p.AddressMappings))
	for i, m := range p.AddressMappings {
		mp, err := toMapping(m)
		if err != nil {
			return nil, err
		}
		mappings[i] = mp
	}

	return &pattern.HammeringPattern{
		ID:                  id,
		BasePeriod:          p.BasePeriod,
		MaxPeriod:           p.MaxPeriod,
		TotalActivations:    p.TotalActivations,
		NumRefreshIntervals: p.NumRefreshIntervals,
		IsLocationDependent: p.IsLocationDependent,
		AccessStream:        pattern.RebuildAccessStream(p.TotalActivations, aaps),
		AAPs:                aaps,
		Mappings:            mappings,
	}, nil
}

func toMapping(m Mapping) (*pattern.Mapping, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("archive: mapping id %q: %w", m.ID, err)
	}
	addrs := make(map[pattern.Aggressor]dramaddr.Addr, len(m.AggressorToAddr))
	for key, addr := range m.AggressorToAddr {
		n, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("archive: aggressor key %q: %w", key, err)
		}
		addrs[pattern.Aggressor(n)] = addr
	}

	victims := make(map[dramaddr.Addr]struct{})
	for _, probe := range m.BitFlips {
		for _, f := range probe {
			victims[f.Addr] = struct{}{}
		}
	}

	return &pattern.Mapping{
		ID:                   id,
		Bank:                 m.BankNo,
		MinRow:               m.MinRow,
		MaxRow:               m.MaxRow,
		AggToAddr:            addrs,
		VictimRows:           victims,
		BitFlips:             m.BitFlips,
		ReproducibilityScore: m.ReproducibilityScore,
		Jitter:               m.Jitter,
	}, nil
}

func distinctAggressors(stream []pattern.Aggressor) []int32 {
	seen := make(map[pattern.Aggressor]struct{})
	var out []int32
	for _, a := range stream {
		if a == pattern.Placeholder {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, int32(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// WriteJSON marshals an Archive to w, indented two spaces for human
// inspection.
func WriteJSON(w io.Writer, a Archive) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(a)
}

// ReadJSON unmarshals an Archive from r.
func ReadJSON(r io.Reader) (Archive, error) {
	var a Archive
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return Archive{}, fmt.Errorf("archive: decoding: %w", err)
	}
	return a, nil
}

// WriteSweepJSON marshals a SweepSummary to w, the same indented
// texture as WriteJSON.
func WriteSweepJSON(w io.Writer, s SweepSummary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
