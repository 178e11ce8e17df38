// Package mmap implements a large block memory allocator using
// anonymous memory maps.

//go:build !plan9 && !js && !wasip1

package mmap

import (
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/rclone/vmm/lib/vmm"
)

// Allocator hands out blocks of memory mapped by a vmm.Manager
type Allocator struct {
	m *vmm.Manager
}

// New makes an Allocator using the Manager passed in
func New(m *vmm.Manager) *Allocator {
	return &Allocator{m: m}
}

var (
	defaultOnce      sync.Once
	defaultAllocator *Allocator
)

func getDefault() *Allocator {
	defaultOnce.Do(func() {
		defaultAllocator = New(vmm.Default())
	})
	return defaultAllocator
}

func (a *Allocator) roundUp(size int) uintptr {
	page := a.m.PageSize()
	return (uintptr(size) + page - 1) &^ (page - 1)
}

// slice makes a byte slice over a mapping made by vmm.  The memory is
// mmap'd by the OS outside the Go heap so the garbage collector never
// moves or frees it, which makes the uintptr conversion safe.
func slice(p uintptr, size int, capacity uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), capacity)[:size]
}

// Alloc allocates size bytes and returns a slice containing them.  If
// the allocation fails it will return with an error.  This is best
// used for allocations which are a multiple of the page size, others
// are rounded up and the slack is left in the capacity.
//
// The memory is committed and reads as zero.
func (a *Allocator) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, errors.Errorf("mmap: can't allocate %d bytes", size)
	}
	capacity := a.roundUp(size)
	p, _, err := a.m.Reserve(0, capacity, true)
	if err != nil {
		return nil, errors.Wrap(err, "mmap: failed to allocate memory for buffer")
	}
	return slice(p, size, capacity), nil
}

// AllocAligned is like Alloc but the memory starts on a multiple of
// alignment which must be a power of two no smaller than the page
// size.
func (a *Allocator) AllocAligned(size, alignment int) ([]byte, error) {
	if size <= 0 {
		return nil, errors.Errorf("mmap: can't allocate %d bytes", size)
	}
	capacity := a.roundUp(size)
	p, _, err := a.m.ReserveAligned(capacity, uintptr(alignment), true)
	if err != nil {
		return nil, errors.Wrap(err, "mmap: failed to allocate aligned memory for buffer")
	}
	return slice(p, size, capacity), nil
}

// Free frees buffers allocated by Alloc.  Note it should be passed
// the same slice (not a derived slice) that Alloc returned.  If the
// free fails it will return with an error.
func (a *Allocator) Free(mem []byte) error {
	mem = mem[:cap(mem)]
	if len(mem) == 0 {
		return errors.New("mmap: can't free empty buffer")
	}
	err := a.m.Release(uintptr(unsafe.Pointer(&mem[0])), uintptr(len(mem)))
	if err != nil {
		return errors.Wrap(err, "mmap: failed to unmap memory")
	}
	return nil
}

// Purge hands the physical memory behind a buffer from Alloc back to
// the OS, keeping the buffer valid.  It returns true if the contents
// might not read as zero afterwards.
func (a *Allocator) Purge(mem []byte) (unzeroed bool) {
	mem = mem[:cap(mem)]
	if len(mem) == 0 {
		return true
	}
	return a.m.Purge(uintptr(unsafe.Pointer(&mem[0])), uintptr(len(mem)))
}

// Alloc allocates size bytes using the default Manager.  See
// Allocator.Alloc.
func Alloc(size int) ([]byte, error) {
	return getDefault().Alloc(size)
}

// Free frees buffers allocated by Alloc.  See Allocator.Free.
func Free(mem []byte) error {
	return getDefault().Free(mem)
}

// Purge releases the physical memory behind a buffer from Alloc.  See
// Allocator.Purge.
func Purge(mem []byte) (unzeroed bool) {
	return getDefault().Purge(mem)
}
