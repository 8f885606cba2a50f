package archive

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dramfuzz/dramfuzz/pkg/arena"
	"github.com/dramfuzz/dramfuzz/pkg/dramaddr"
	"github.com/dramfuzz/dramfuzz/pkg/hammer"
	"github.com/dramfuzz/dramfuzz/pkg/pattern"
)

func samplePattern() *pattern.HammeringPattern {
	m := &pattern.Mapping{
		ID:   uuid.New(),
		Bank: 2,
		AggToAddr: map[pattern.Aggressor]dramaddr.Addr{
			0: {Bank: 2, Row: 10, Col: 0},
			1: {Bank: 2, Row: 20, Col: 0},
		},
		VictimRows: map[dramaddr.Addr]struct{}{
			{Bank: 2, Row: 15, Col: 0}: {},
		},
		BitFlips: [][]arena.BitFlip{
			{{Addr: dramaddr.Addr{Bank: 2, Row: 15, Col: 0}, Bitmask: 0x01, Corrupted: 0x01}},
		},
		MinRow:               10,
		MaxRow:               20,
		ReproducibilityScore: 0.5,
		Jitter:               hammer.DefaultJitterParams,
	}

	return &pattern.HammeringPattern{
		ID:               uuid.New(),
		BasePeriod:       2,
		MaxPeriod:        4,
		TotalActivations: 6,
		AccessStream:     []pattern.Aggressor{0, 1, 0, 1, 0, 1},
		AAPs: []pattern.AAP{
			{Aggressors: []pattern.Aggressor{0, 1}, Frequency: 2, Amplitude: 1, StartOffset: 0},
		},
		Mappings: []*pattern.Mapping{m},
	}
}

func TestFromPatternToPatternRoundTrip(t *testing.T) {
	hp := samplePattern()
	wire := FromPattern(hp)

	if wire.ID != hp.ID.String() {
		t.Errorf("ID = %q, want %q", wire.ID, hp.ID.String())
	}
	if len(wire.AccessIDs) != 2 {
		t.Fatalf("AccessIDs = %v, want 2 distinct ids", wire.AccessIDs)
	}
	if wire.AccessIDs[0] != 0 || wire.AccessIDs[1] != 1 {
		t.Errorf("AccessIDs = %v, want [0 1]", wire.AccessIDs)
	}

	back, err := ToPattern(wire)
	if err != nil {
		t.Fatalf("ToPattern: %v", err)
	}
	if back.ID != hp.ID {
		t.Errorf("round-tripped ID = %v, want %v", back.ID, hp.ID)
	}
	if back.TotalActivations != hp.TotalActivations {
		t.Errorf("TotalActivations = %d, want %d", back.TotalActivations, hp.TotalActivations)
	}
	if len(back.AccessStream) != len(hp.AccessStream) {
		t.Fatalf("AccessStream length = %d, want %d", len(back.AccessStream), len(hp.AccessStream))
	}
	for i := range hp.AccessStream {
		if back.AccessStream[i] != hp.AccessStream[i] {
			t.Errorf("AccessStream[%d] = %v, want %v", i, back.AccessStream[i], hp.AccessStream[i])
		}
	}

	if len(back.Mappings) != 1 {
		t.Fatalf("Mappings = %d, want 1", len(back.Mappings))
	}
	gotM := back.Mappings[0]
	wantM := hp.Mappings[0]
	if gotM.Bank != wantM.Bank {
		t.Errorf("Bank = %d, want %d", gotM.Bank, wantM.Bank)
	}
	for agg, addr := range wantM.AggToAddr {
		if gotM.AggToAddr[agg] != addr {
			t.Errorf("AggToAddr[%d] = %v, want %v", agg, gotM.AggToAddr[agg], addr)
		}
	}
	if _, ok := gotM.VictimRows[dramaddr.Addr{Bank: 2, Row: 15, Col: 0}]; !ok {
		t.Error("victim row reconstructed from bit flips not present after round trip")
	}
}

func TestWriteJSONReadJSONRoundTrip(t *testing.T) {
	hp := samplePattern()
	arc := Archive{
		Metadata: Metadata{
			RunID:     "run-1",
			StartTime: time.Unix(1000, 0).UTC(),
			EndTime:   time.Unix(2000, 0).UTC(),
		},
		HammeringPatterns: []Pattern{FromPattern(hp)},
	}

	var buf bytes.Buffer
	if err := WriteJSON(&buf, arc); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	got, err := ReadJSON(&buf)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got.Metadata.RunID != arc.Metadata.RunID {
		t.Errorf("RunID = %q, want %q", got.Metadata.RunID, arc.Metadata.RunID)
	}
	if len(got.HammeringPatterns) != 1 {
		t.Fatalf("HammeringPatterns = %d, want 1", len(got.HammeringPatterns))
	}
	if got.HammeringPatterns[0].ID != arc.HammeringPatterns[0].ID {
		t.Errorf("pattern ID = %q, want %q", got.HammeringPatterns[0].ID, arc.HammeringPatterns[0].ID)
	}
}

func TestToPatternRejectsInvalidID(t *testing.T) {
	_, err := ToPattern(Pattern{ID: "not-a-uuid"})
	if err == nil {
		t.Fatal("expected error for invalid pattern id")
	}
}

func TestCheckpointSaveLoadRoundTrip(t *testing.T) {
	ckpt := &Checkpoint{
		Patterns:             []Pattern{FromPattern(samplePattern())},
		BestPatternID:        "best-id",
		BestFlips:            4,
		CntGeneratedPatterns: 10,
		CntPatternProbes:     40,
	}

	path := filepath.Join(t.TempDir(), "checkpoint.gob")
	if err := SaveCheckpoint(path, ckpt); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	got, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if got.BestPatternID != ckpt.BestPatternID {
		t.Errorf("BestPatternID = %q, want %q", got.BestPatternID, ckpt.BestPatternID)
	}
	if got.CntGeneratedPatterns != ckpt.CntGeneratedPatterns {
		t.Errorf("CntGeneratedPatterns = %d, want %d", got.CntGeneratedPatterns, ckpt.CntGeneratedPatterns)
	}
	if len(got.Patterns) != 1 {
		t.Fatalf("Patterns = %d, want 1", len(got.Patterns))
	}
}

func TestLoadCheckpointMissingFile(t *testing.T) {
	_, err := LoadCheckpoint(filepath.Join(t.TempDir(), "does-not-exist.gob"))
	if err == nil {
		t.Fatal("expected error loading a missing checkpoint file")
	}
	if !os.IsNotExist(err) {
		t.Errorf("error = %v, want a not-exist error", err)
	}
}
