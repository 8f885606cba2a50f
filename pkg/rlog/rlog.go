// Package rlog wraps zerolog with the six logging levels a fuzzing run
// reports against: debug, info, warn, error, success, and bitflip — the
// last two extend zerolog past its own zerolog.Disabled so a bit-flip
// detection can never be silenced by a warn/error verbosity filter
// (spec.md §7).
package rlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// SuccessLevel reports a positive outcome worth calling out above info
// (e.g. convergence reached, archive written) but below a detection.
const SuccessLevel zerolog.Level = zerolog.Disabled + 1

// BitFlipLevel reports an observed bit flip — the highest-priority,
// always-on event a run can emit.
const BitFlipLevel zerolog.Level = zerolog.Disabled + 2

func init() {
	base := zerolog.LevelFieldMarshalFunc
	zerolog.LevelFieldMarshalFunc = func(l zerolog.Level) string {
		switch l {
		case SuccessLevel:
			return "success"
		case BitFlipLevel:
			return "bitflip"
		default:
			if base != nil {
				return base(l)
			}
			return l.String()
		}
	}
}

// Logger wraps a zerolog.Logger and exposes the six fixed levels as
// methods returning *zerolog.Event, matching zerolog's own chained-field
// calling convention (e.g. log.Error().Err(err).Msg("...")).
type Logger struct {
	base zerolog.Logger
}

// New builds a Logger writing leveled, human-readable lines to console
// (matching the teacher's plain fmt.Printf progress texture, but
// leveled) and, when logfile is non-nil, raw JSON lines to it as well —
// the --logfile flag's behavior (SPEC_FULL.md §4.G).
func New(console io.Writer, logfile io.Writer) Logger {
	cw := zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}
	var w io.Writer = cw
	if logfile != nil {
		w = zerolog.MultiLevelWriter(cw, logfile)
	}
	return Logger{base: zerolog.New(w).With().Timestamp().Logger()}
}

// Default builds a Logger writing a console-formatted stream to stderr
// with no file duplication.
func Default() Logger { return New(os.Stderr, nil) }

func (l Logger) Debug() *zerolog.Event { return l.base.Debug() }
func (l Logger) Info() *zerolog.Event  { return l.base.Info() }
func (l Logger) Warn() *zerolog.Event  { return l.base.Warn() }
func (l Logger) Error() *zerolog.Event { return l.base.Error() }

// Success logs at SuccessLevel, always emitted regardless of the
// configured minimum level short of a full Disabled filter.
func (l Logger) Success() *zerolog.Event { return l.base.WithLevel(SuccessLevel) }

// BitFlip logs at BitFlipLevel — a bit-flip detection.
func (l Logger) BitFlip() *zerolog.Event { return l.base.WithLevel(BitFlipLevel) }

// Base exposes the underlying zerolog.Logger for components (e.g.
// pkg/arena) that accept one directly.
func (l Logger) Base() zerolog.Logger { return l.base }
