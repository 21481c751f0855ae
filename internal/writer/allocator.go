package writer

import (
	"fmt"
	"sync"
)

// Allocator hands out file space append-only. Freed space is never
// reused; rewriting a structure allocates a fresh block at the end.
type Allocator struct {
	mu  sync.Mutex
	eof uint64
}

// NewAllocator starts allocation at initialOffset, normally the size
// of the superblock.
func NewAllocator(initialOffset uint64) *Allocator {
	return &Allocator{eof: initialOffset}
}

// Allocate reserves size bytes and returns their address.
func (a *Allocator) Allocate(size uint64) (uint64, error) {
	if size == 0 {
		return 0, fmt.Errorf("cannot allocate zero bytes")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	addr := a.eof
	if addr+size < addr {
		return 0, fmt.Errorf("allocation of %d bytes overflows file size", size)
	}
	a.eof += size
	return addr, nil
}

// AllocateAligned reserves size bytes starting on an align boundary.
func (a *Allocator) AllocateAligned(size, align uint64) (uint64, error) {
	if align == 0 || align&(align-1) != 0 {
		return 0, fmt.Errorf("alignment %d is not a power of two", align)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	addr := (a.eof + align - 1) &^ (align - 1)
	if addr+size < addr {
		return 0, fmt.Errorf("allocation of %d bytes overflows file size", size)
	}
	a.eof = addr + size
	return addr, nil
}

// EOF returns the current end-of-file address.
func (a *Allocator) EOF() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.eof
}
