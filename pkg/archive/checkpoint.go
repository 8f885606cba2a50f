package archive

import (
	"encoding/gob"
	"os"

	"github.com/google/uuid"
)

// Checkpoint holds enough state to resume an interrupted fuzzing run:
// every pattern archived so far, the best pattern seen, and the
// generation/probe counters, mirroring the teacher's
// pkg/result.Checkpoint shape but for this domain's state instead of a
// superoptimizer's search position.
type Checkpoint struct {
	Patterns             []Pattern
	BestPatternID        string
	BestFlips            int
	CntGeneratedPatterns int
	CntPatternProbes     int
}

func init() {
	gob.Register(uuid.UUID{})
}

// SaveCheckpoint writes run state to path.
func SaveCheckpoint(path string, ckpt *Checkpoint) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(ckpt)
}

// LoadCheckpoint loads run state from path.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var ckpt Checkpoint
	if err := gob.NewDecoder(f).Decode(&ckpt); err != nil {
		return nil, err
	}
	return &ckpt, nil
}
