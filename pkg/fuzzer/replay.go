package fuzzer

import (
	"fmt"

	"github.com/dramfuzz/dramfuzz/pkg/archive"
	"github.com/dramfuzz/dramfuzz/pkg/hammer"
	"github.com/dramfuzz/dramfuzz/pkg/pattern"
)

// Replay restores patterns from a previously exported archive and
// re-hammers each of their stored mappings, per spec.md §4.G.3. ids
// selects which archived pattern ids to replay; a nil/empty ids replays
// every pattern in arc. If c.Sweeping is set, each replayed pattern is
// additionally swept (§4.G.2, not stopping early — replay wants full
// coverage, unlike the best-pattern-only fuzzing-exit sweep).
func (c *Context) Replay(arc archive.Archive, ids []string) ([]*pattern.HammeringPattern, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	var replayed []*pattern.HammeringPattern
	for _, wireHP := range arc.HammeringPatterns {
		if len(want) > 0 && !want[wireHP.ID] {
			continue
		}
		hp, err := archive.ToPattern(wireHP)
		if err != nil {
			return nil, fmt.Errorf("fuzzer: restoring pattern %s: %w", wireHP.ID, err)
		}

		for _, m := range hp.Mappings {
			if err := c.replayMapping(hp, m); err != nil {
				c.Log.Warn().Err(err).Str("pattern_id", hp.ID.String()).Str("mapping_id", m.ID.String()).
					Msg("replay: skipping unhammerable mapping")
				continue
			}
		}

		if c.Sweeping {
			if _, err := c.Sweep(hp, false); err != nil {
				c.Log.Warn().Err(err).Str("pattern_id", hp.ID.String()).Msg("replay: sweep failed")
			}
		}

		replayed = append(replayed, hp)
	}

	if len(want) > 0 && len(replayed) != len(want) {
		c.Log.Warn().Int("requested", len(want)).Int("found", len(replayed)).Msg("replay: some requested pattern ids were not in the archive")
	}

	return replayed, nil
}

// replayMapping re-hammers an already-placed mapping using its own
// stored jitter parameters rather than the context's default ones —
// the archived JitterParams is exactly what that mapping was probed
// with originally.
func (c *Context) replayMapping(hp *pattern.HammeringPattern, m *pattern.Mapping) error {
	addrs := hammer.ResolveAddresses(hp.AccessStream, m, c.Translator)
	head, body, tail, err := hammer.SplitSyncAggressors(addrs, m.Jitter.NumSyncAggressors)
	if err != nil {
		return err
	}

	engine := c.Engine
	if m.Jitter != c.HammerParams.Jitter {
		replayParams := c.HammerParams
		replayParams.Jitter = m.Jitter
		engine = hammer.NewEngine(c.Exec, replayParams)
	}
	engine.Hammer(head, body, tail)

	flips, err := hammer.ScanVictims(c.Arena, m, c.Translator)
	if err != nil {
		return err
	}
	if len(flips) > 0 {
		c.Log.BitFlip().Str("mapping_id", m.ID.String()).Int("count", len(flips)).Msg("replay: bit flips detected")
	}
	return nil
}
