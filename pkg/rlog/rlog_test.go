package rlog

import (
	"bytes"
	"encoding/json"
	"testing"
)

// The console writer reformats each line into zerolog's human-readable
// texture; the logfile writer (when present) receives the raw JSON
// zerolog itself encoded, since zerolog.MultiLevelWriter fans the same
// bytes out to every sink. Level-field assertions use the logfile sink
// so they check the marshaled value rather than the console's
// reformatted text.

func TestSuccessLevelMarshalsToSuccess(t *testing.T) {
	var console, logfile bytes.Buffer
	l := New(&console, &logfile)
	l.Success().Msg("new best pattern")

	var line map[string]any
	if err := json.Unmarshal(logfile.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal log line: %v (raw: %s)", err, logfile.String())
	}
	if line["level"] != "success" {
		t.Errorf("level = %v, want success", line["level"])
	}
	if line["message"] != "new best pattern" {
		t.Errorf("message = %v, want %q", line["message"], "new best pattern")
	}
}

func TestBitFlipLevelMarshalsToBitflip(t *testing.T) {
	var console, logfile bytes.Buffer
	l := New(&console, &logfile)
	l.BitFlip().Int("count", 3).Msg("bit flips detected")

	var line map[string]any
	if err := json.Unmarshal(logfile.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal log line: %v (raw: %s)", err, logfile.String())
	}
	if line["level"] != "bitflip" {
		t.Errorf("level = %v, want bitflip", line["level"])
	}
}

func TestStandardLevelsUnaffected(t *testing.T) {
	var console, logfile bytes.Buffer
	l := New(&console, &logfile)
	l.Warn().Msg("calibration did not converge")

	var line map[string]any
	if err := json.Unmarshal(logfile.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal log line: %v (raw: %s)", err, logfile.String())
	}
	if line["level"] != "warn" {
		t.Errorf("level = %v, want warn", line["level"])
	}
}

func TestNewWritesToBothConsoleAndLogfile(t *testing.T) {
	var console, logfile bytes.Buffer
	l := New(&console, &logfile)
	l.Info().Msg("hello")

	if console.Len() == 0 {
		t.Error("console writer received nothing")
	}
	if logfile.Len() == 0 {
		t.Error("logfile writer received nothing")
	}
}

func TestDefaultDoesNotPanic(t *testing.T) {
	l := Default()
	l.Info().Msg("smoke test")
}
