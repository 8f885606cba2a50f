//go:build amd64 && linux

package hammer

import (
	"fmt"
	"unsafe"

	"github.com/chenzhuoyu/iasm/x86_64"
	"golang.org/x/sys/unix"
)

// JITExecutor compiles a Schedule into a straight-line, branch-free
// native amd64 function using github.com/chenzhuoyu/iasm/x86_64 — the
// same dynamic-assembler family that backs bytedance/sonic's
// runtime-generated codecs — and executes it directly, avoiding the
// dispatch-loop latency a Go-level interpreter would add between
// accesses (spec.md §4.F's "Synthesis" note).
type JITExecutor struct {
	page []byte
	fn   func() int32
}

// NewJITExecutor builds an idle executor; Run compiles each Schedule it
// is given.
func NewJITExecutor() *JITExecutor { return &JITExecutor{} }

// Compile assembles body into native code and maps it executable. Each
// Read increments EDX; the compiled function returns EDX, the number of
// activations it performed, mirroring jit_strict's activation counter.
func (j *JITExecutor) Compile(body Schedule) error {
	asm := x86_64.CreateAssembler()

	asm.Emit("XORL", x86_64.Reg(x86_64.EDX), x86_64.Reg(x86_64.EDX))

	emitAddr := func(addr uintptr) {
		asm.Emit("MOVQ", x86_64.Imm(int64(addr)), x86_64.Reg(x86_64.RAX))
	}

	for _, op := range body {
		switch op.Kind {
		case Read:
			emitAddr(op.Addr)
			asm.Emit("MOVQ", x86_64.Ptr(x86_64.RAX, 0), x86_64.Reg(x86_64.RCX))
			asm.Emit("INCL", x86_64.Reg(x86_64.EDX))
		case Flush:
			emitAddr(op.Addr)
			asm.Emit("CLFLUSHOPT", x86_64.Ptr(x86_64.RAX, 0))
		case Fence:
			asm.Emit("MFENCE")
		case SyncBarrier:
			for _, addr := range op.Barrier {
				emitAddr(addr)
				asm.Emit("CLFLUSHOPT", x86_64.Ptr(x86_64.RAX, 0))
				asm.Emit("MOVQ", x86_64.Ptr(x86_64.RAX, 0), x86_64.Reg(x86_64.RCX))
			}
			asm.Emit("MFENCE")
		}
	}

	asm.Emit("MOVL", x86_64.Reg(x86_64.EDX), x86_64.Reg(x86_64.EAX))
	asm.Emit("RET")

	code, err := asm.Assemble(0)
	if err != nil {
		return fmt.Errorf("hammer: assembling schedule: %w", err)
	}

	page, err := unix.Mmap(-1, 0, len(code), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return fmt.Errorf("hammer: mapping code page: %w", err)
	}
	copy(page, code)
	if err := unix.Mprotect(page, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("hammer: making code page executable: %w", err)
	}

	j.page = page
	j.fn = makeTrampoline(page)
	return nil
}

// Run compiles body into a fresh code page, unmapping the previously
// compiled one, and calls it.
func (j *JITExecutor) Run(body Schedule) (int, error) {
	if err := j.Close(); err != nil {
		return 0, err
	}
	if err := j.Compile(body); err != nil {
		return 0, err
	}
	return int(j.fn()), nil
}

// Close unmaps the compiled code page.
func (j *JITExecutor) Close() error {
	if j.page == nil {
		return nil
	}
	err := unix.Munmap(j.page)
	j.page = nil
	j.fn = nil
	return err
}

// makeTrampoline builds a Go func() int32 whose entry point is code's
// first byte, using the classic raw-function-pointer-from-byte-slice
// trick: a Go func value is, at the ABI level, a pointer to a pointer to
// code; overwriting that inner pointer to point at our mapped page lets
// the Go calling convention invoke it directly.
func makeTrampoline(code []byte) func() int32 {
	var f func() int32
	type funcVal struct{ entry uintptr }
	pf := (**funcVal)(unsafe.Pointer(&f))
	*pf = &funcVal{entry: uintptr(unsafe.Pointer(&code[0]))}
	return f
}
