// Fallback Alloc and Free for unsupported OSes

//go:build plan9 || js || wasip1

package mmap

import "github.com/rclone/vmm/lib/vmm"

// Allocator hands out blocks from the Go heap on this platform
type Allocator struct{}

// New makes an Allocator.  The Manager is unused here.
func New(m *vmm.Manager) *Allocator {
	return &Allocator{}
}

// Alloc allocates size bytes and returns a slice containing them.  If
// the allocation fails it will return with an error.  This is best
// used for allocations which are a multiple of the Pagesize.
func (a *Allocator) Alloc(size int) ([]byte, error) {
	return make([]byte, size), nil
}

// Free frees buffers allocated by Alloc.  Note it should be passed
// the same slice (not a derived slice) that Alloc returned.  If the
// free fails it will return with an error.
func (a *Allocator) Free(mem []byte) error {
	return nil
}

// Purge does nothing, the Go heap owns the memory.
func (a *Allocator) Purge(mem []byte) (unzeroed bool) {
	return true
}

// Alloc allocates size bytes from the Go heap
func Alloc(size int) ([]byte, error) {
	return make([]byte, size), nil
}

// Free does nothing, the garbage collector frees the memory
func Free(mem []byte) error {
	return nil
}

// Purge does nothing, the Go heap owns the memory.
func Purge(mem []byte) (unzeroed bool) {
	return true
}
