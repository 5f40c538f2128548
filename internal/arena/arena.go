//go:build linux || darwin || freebsd || netbsd || openbsd

// Package arena implements the per-connection memory arena: a single mmap
// region carved into a no-access guard page followed by a fixed-size scratch
// buffer, torn down in one munmap call.
//
// The original design (see original_source/src/connection.cpp in the spec
// pack) places the coroutine's execution stack and its control block in the
// same region as the guard page. A Go goroutine's stack is owned and grown
// by the runtime and cannot be relocated into caller-supplied memory, and a
// struct containing channels or pointers cannot safely live outside
// GC-managed memory. This package therefore arenas the one thing that both
// can and should live off-heap: the fixed-size read/write scratch buffer a
// connection's coroutine body reads into and sends from. The guard page
// still sits immediately below it and still faults deterministically on
// overrun; the connection control block itself is an ordinary Go-heap
// allocation (see internal/conn).
package arena

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Arena is one mmap region: [guard page (PROT_NONE)][scratch buffer].
type Arena struct {
	base   []byte // the full mapping, for munmap
	buf    []byte // the usable scratch buffer, a sub-slice of base
	pageSz int
}

var (
	liveCount int64
	liveBytes int64
)

// LiveCount returns the number of arenas currently allocated and not yet
// released. It exists so tests can assert the allocate/deallocate round
// trip never leaks (spec.md §8, "Round-trip / laws").
func LiveCount() int64 { return atomic.LoadInt64(&liveCount) }

// LiveBytes returns the total mapped bytes across all live arenas.
func LiveBytes() int64 { return atomic.LoadInt64(&liveBytes) }

// pageSize is resolved once at package init via unix.Getpagesize, mirroring
// the original's sysconf(_SC_PAGESIZE) call.
var pageSize = unix.Getpagesize()

func roundUpPage(n int) int {
	mask := pageSize - 1
	return (n + mask) &^ mask
}

// Allocate reserves a fresh guard-paged arena sized to hold at least
// bufSize usable bytes, rounded up to whole pages. The guard page occupies
// the page immediately below the returned buffer.
func Allocate(bufSize int) (*Arena, error) {
	if bufSize <= 0 {
		bufSize = 1
	}
	usable := roundUpPage(bufSize)
	total := pageSize + usable

	base, err := unix.Mmap(-1, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("arena: mmap %d bytes: %w", total, err)
	}

	if err := unix.Mprotect(base[:pageSize], unix.PROT_NONE); err != nil {
		_ = unix.Munmap(base)
		return nil, fmt.Errorf("arena: mprotect guard page: %w", err)
	}

	a := &Arena{
		base:   base,
		buf:    base[pageSize : pageSize+usable : pageSize+usable],
		pageSz: pageSize,
	}
	atomic.AddInt64(&liveCount, 1)
	atomic.AddInt64(&liveBytes, int64(total))
	return a, nil
}

// Buffer returns the usable scratch region. Writing past its length is a
// plain Go slice-bounds panic; writing past its capacity is impossible
// through the slice APIs, and only an unsafe/cgo-level overrun could ever
// reach the guard page, which is by design: it exists to turn a corrupted
// offset into a deterministic fault rather than silent adjacent-memory
// corruption.
func (a *Arena) Buffer() []byte { return a.buf }

// Release unmaps the arena in a single syscall. The caller must guarantee
// nothing holds a reference to Buffer() after this returns.
func (a *Arena) Release() error {
	if a.base == nil {
		return nil
	}
	total := len(a.base)
	err := unix.Munmap(a.base)
	a.base = nil
	a.buf = nil
	atomic.AddInt64(&liveCount, -1)
	atomic.AddInt64(&liveBytes, -int64(total))
	if err != nil {
		return fmt.Errorf("arena: munmap: %w", err)
	}
	return nil
}
