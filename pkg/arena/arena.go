// Package arena allocates and manages the contiguous huge-page-backed
// memory region that DRAM addresses are translated into and out of,
// per spec.md §4.D.
package arena

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/dramfuzz/dramfuzz/pkg/dramaddr"
	"github.com/rs/zerolog"
)

// ErrAllocationFailed is returned when neither the huge-page-filesystem
// path nor the anonymous-mapping fallback could place the arena.
var ErrAllocationFailed = errors.New("arena: allocation failed")

// PageSize is the granularity at which the arena is seeded and
// verified.
const PageSize = 4096

// DefaultBaseAddr is the fixed high virtual address the reference
// implementation requests for its arena.
const DefaultBaseAddr uintptr = 0x2000000000

// DefaultHugePagePath is the hugetlbfs-backed file used by the
// preferred allocation path.
const DefaultHugePagePath = "/mnt/huge/buff"

// BitFlip records one observed single-byte corruption during a verify
// pass.
type BitFlip struct {
	Addr      dramaddr.Addr `json:"addr"`
	Bitmask   byte          `json:"bitmask"`
	Corrupted byte          `json:"corrupted"`
	Observed  time.Time     `json:"observed"`
}

// Arena is a contiguous mapped region, its base virtual address, and
// whether it was backed by an explicit huge-page file or an anonymous
// fallback mapping.
type Arena struct {
	data      []byte
	base      uintptr
	hugePage  bool
	hugeFile  *os.File
	log       zerolog.Logger
}

// Options configures Allocate.
type Options struct {
	Size         int
	BaseAddr     uintptr
	HugePagePath string
	Log          zerolog.Logger
}

// Allocate maps a region of Options.Size bytes, preferring a shared
// mapping backed by a hugetlbfs file at Options.HugePagePath, falling
// back to an anonymous mapping hinted for transparent huge pages with a
// bounded wait for kernel promotion. Options.BaseAddr is not passed to
// mmap, so the kernel chooses where the mapping goes; when the obtained
// address differs from Options.BaseAddr, it is logged and adopted as the
// arena's base.
func Allocate(opts Options) (*Arena, error) {
	if opts.Size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive", ErrAllocationFailed)
	}
	if opts.BaseAddr == 0 {
		opts.BaseAddr = DefaultBaseAddr
	}
	if opts.HugePagePath == "" {
		opts.HugePagePath = DefaultHugePagePath
	}

	a, err := allocateHugePage(opts)
	if err == nil {
		return a, nil
	}
	opts.Log.Warn().Err(err).Msg("huge-page-filesystem allocation failed, falling back to anonymous mapping")

	return allocateAnonymous(opts)
}

func allocateHugePage(opts Options) (*Arena, error) {
	f, err := os.OpenFile(opts.HugePagePath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("arena: opening hugetlbfs file %s: %w", opts.HugePagePath, err)
	}
	if err := f.Truncate(int64(opts.Size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("arena: truncating hugetlbfs file: %w", err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, opts.Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("arena: mmap of hugetlbfs file: %w", err)
	}

	base := uintptr(unsafe.Pointer(&data[0]))
	if base != opts.BaseAddr {
		opts.Log.Warn().
			Str("requested", fmt.Sprintf("0x%x", opts.BaseAddr)).
			Str("obtained", fmt.Sprintf("0x%x", base)).
			Msg("huge-page mapping not placed at requested address, adopting obtained address")
	}

	return &Arena{data: data, base: base, hugePage: true, hugeFile: f, log: opts.Log}, nil
}

func allocateAnonymous(opts Options) (*Arena, error) {
	data, err := unix.Mmap(-1, 0, opts.Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("%w: anonymous mmap: %v", ErrAllocationFailed, err)
	}

	if err := unix.Madvise(data, unix.MADV_HUGEPAGE); err != nil {
		opts.Log.Warn().Err(err).Msg("MADV_HUGEPAGE hint rejected")
	}

	base := uintptr(unsafe.Pointer(&data[0]))
	waitForHugePagePromotion(base, 10*time.Second)

	if base != opts.BaseAddr {
		opts.Log.Warn().
			Str("requested", fmt.Sprintf("0x%x", opts.BaseAddr)).
			Str("obtained", fmt.Sprintf("0x%x", base)).
			Msg("anonymous mapping not placed at requested address, adopting obtained address")
	}

	return &Arena{data: data, base: base, hugePage: false, log: opts.Log}, nil
}

// waitForHugePagePromotion polls /proc/self/smaps for an AnonHugePages
// entry covering base, giving the kernel's khugepaged up to timeout to
// promote the mapping.
func waitForHugePagePromotion(base uintptr, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if anonHugePagesPromoted(base) {
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func anonHugePagesPromoted(base uintptr) bool {
	data, err := os.ReadFile("/proc/self/smaps")
	if err != nil {
		return false
	}
	target := fmt.Sprintf("%x", base)

	inRegion := false
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) > 0 && line[0] != ' ' && line[0] != '\t' {
			// A new mapping header line, e.g. "2000000000-2040000000 rw-p ...".
			inRegion = strings.Contains(strings.SplitN(line, "-", 2)[0], target)
			continue
		}
		if inRegion && strings.HasPrefix(strings.TrimSpace(line), "AnonHugePages:") {
			return !strings.HasSuffix(strings.TrimSpace(line), "0 kB")
		}
	}
	return false
}

// Base returns the arena's actual virtual base address.
func (a *Arena) Base() uintptr { return a.base }

// Len returns the arena size in bytes.
func (a *Arena) Len() int { return len(a.data) }

// HugePage reports whether the arena is backed by an explicit
// hugetlbfs file (as opposed to the anonymous fallback).
func (a *Arena) HugePage() bool { return a.hugePage }

// Close unmaps the arena and, if huge-page-backed, closes the backing
// file.
func (a *Arena) Close() error {
	err := unix.Munmap(a.data)
	if a.hugeFile != nil {
		if cerr := a.hugeFile.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// NewFakeArena builds an Arena directly over an existing byte slice,
// skipping mmap entirely. It exists so other packages' tests (e.g.
// pkg/hammer's bit-flip scan tests) can exercise Seed/Verify/VerifyAt
// without hugetlbfs or root, the same cross-package fake-construction
// idiom as cpuprim.NewFakeAccessTimer.
func NewFakeArena(base uintptr, data []byte) *Arena {
	return &Arena{data: data, base: base}
}

// pageSlice returns the arena's backing slice for the page at pageIdx.
func (a *Arena) pageSlice(pageIdx int) []byte {
	start := pageIdx * PageSize
	return a.data[start : start+PageSize]
}

func (a *Arena) numPages() int { return len(a.data) / PageSize }
