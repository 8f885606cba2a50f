//go:build !amd64

package cpuprim

// dramfuzz's timing and cache primitives are intrinsically tied to
// x86-64 (RDTSCP, CLFLUSHOPT, MFENCE, LFENCE). Cross-ISA portability is
// explicitly out of scope (spec.md §1) — this file exists only so that
// the package builds on another architecture but every primitive panics
// at the call site instead of silently doing nothing.

func ReadTSC() uint64 { panic("cpuprim: not implemented outside amd64") }

func FlushLine(addr uintptr) { panic("cpuprim: not implemented outside amd64") }

func MemoryFence() { panic("cpuprim: not implemented outside amd64") }

func LoadFence() { panic("cpuprim: not implemented outside amd64") }

func ReadByte(ptr uintptr) byte { panic("cpuprim: not implemented outside amd64") }
