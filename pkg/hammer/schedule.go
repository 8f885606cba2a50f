package hammer

import (
	"errors"

	"github.com/dramfuzz/dramfuzz/pkg/dramaddr"
	"github.com/dramfuzz/dramfuzz/pkg/pattern"
)

// ErrTooFewSyncAggressors is returned when a pattern's access_stream
// has fewer than 2*NumSyncAggressors entries, leaving no room for a
// hammered body once the first/last S positions are reserved for sync.
var ErrTooFewSyncAggressors = errors.New("hammer: access stream shorter than twice the sync aggressor count")

// ResolveAddresses walks a pattern's access_stream and maps every
// non-placeholder aggressor to its mapped virtual address, per "Mapping
// → schedule" in spec.md §4.F. Placeholders (should not occur in a
// fully synthesized pattern, but are skipped defensively) are dropped.
func ResolveAddresses(stream []pattern.Aggressor, m *pattern.Mapping, trans *dramaddr.Translator) []uintptr {
	addrs := make([]uintptr, 0, len(stream))
	for _, agg := range stream {
		if agg == pattern.Placeholder {
			continue
		}
		addr, ok := m.AggToAddr[agg]
		if !ok {
			continue
		}
		addrs = append(addrs, trans.ToVirtual(addr))
	}
	return addrs
}

// SplitSyncAggressors separates the first and last numSync addresses
// (reserved for refresh-interval synchronization) from the body that
// gets hammered.
func SplitSyncAggressors(addrs []uintptr, numSync int) (head, body, tail []uintptr, err error) {
	if len(addrs) < 2*numSync {
		return nil, nil, nil, ErrTooFewSyncAggressors
	}
	head = addrs[:numSync]
	tail = addrs[len(addrs)-numSync:]
	body = addrs[numSync : len(addrs)-numSync]
	return head, body, tail, nil
}

// BuildSchedule walks the hammered body addresses and the flushing/
// fencing strategy to produce a straight-line Op sequence, per spec.md
// §4.F steps 3-4's per-access bookkeeping: "the was this address
// accessed before? bookkeeping is kept in a map keyed by the address;
// both fence and flush reset that bit."
//
// This is the part of the engine that never touches real memory or a
// timer — every Op it emits is a pure function of addrs and jitter, so
// it is unit-testable by asserting directly on the returned Schedule.
func BuildSchedule(addrs []uintptr, jitter JitterParams) Schedule {
	sched := make(Schedule, 0, len(addrs)*2)
	accessedBefore := make(map[uintptr]bool, len(addrs))

	for _, addr := range addrs {
		if accessedBefore[addr] {
			if jitter.FlushStrategy == FlushLatestPossible {
				sched = append(sched, Op{Kind: Flush, Addr: addr})
				accessedBefore[addr] = false
			}
			if jitter.FenceStrategy == FenceLatestPossible {
				sched = append(sched, Op{Kind: Fence})
				accessedBefore[addr] = false
			}
		}

		sched = append(sched, Op{Kind: Read, Addr: addr})
		accessedBefore[addr] = true

		if jitter.FlushStrategy == FlushEarliestPossible {
			sched = append(sched, Op{Kind: Flush, Addr: addr})
		}
		if jitter.FenceStrategy == FenceEarliestPossible {
			sched = append(sched, Op{Kind: Fence})
		}
	}

	return sched
}

// BuildSyncBarrier builds a single SyncBarrier Op over a copy of addrs.
// The Engine does not use it: its refresh synchronization runs its own
// timed busy-wait loop (syncOnRefresh), since that depends on a live
// timer, not on data the Schedule can carry statically.
func BuildSyncBarrier(addrs []uintptr) Op {
	return Op{Kind: SyncBarrier, Barrier: append([]uintptr(nil), addrs...)}
}
