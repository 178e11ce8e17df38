//go:build unix

package vmm

import (
	"os"
	"unsafe"

	"github.com/rclone/vmm/fs"
	"golang.org/x/sys/unix"
)

const (
	protCommit   = unix.PROT_READ | unix.PROT_WRITE
	protDecommit = unix.PROT_NONE
)

func protection(commit bool) int {
	if commit {
		return protCommit
	}
	return protDecommit
}

// mapFlags returns the flags for new reservations.  MAP_FIXED is
// never among them as it replaces whatever is mapped already.
func mapFlags(overcommit bool) MapFlags {
	flags := unix.MAP_PRIVATE | unix.MAP_ANON
	if overcommit {
		flags |= mapNoReserve
	}
	return MapFlags(flags)
}

// posixBackend maps with mmap, releases with munmap and purges with
// madvise.
type posixBackend struct {
	flags    int
	advice   int
	zeros    bool // advice guarantees zero filled pages afterwards
	canPurge bool
	name     *byte // NUL terminated mapping name, nil if unnamed
}

func newBackend(p Policy) backend {
	advice, zeros, ok := purgeAdvice(p.LazyPurge)
	b := &posixBackend{
		flags:    int(p.Flags),
		advice:   advice,
		zeros:    zeros,
		canPurge: ok,
	}
	if p.Name != "" {
		name, err := unix.BytePtrFromString(p.Name)
		if err != nil {
			fs.Debugf(nil, "vmm: not naming mappings %q: %v", p.Name, err)
		} else {
			b.name = name
		}
	}
	return b
}

func (b *posixBackend) String() string {
	return "mmap"
}

func (b *posixBackend) reserve(addr, size uintptr, commit bool) (uintptr, error) {
	p, err := unix.MmapPtr(-1, 0, unsafe.Pointer(addr), size, protection(commit), b.flags)
	if err != nil {
		return 0, os.NewSyscallError("mmap", err)
	}
	nameMapping(uintptr(p), size, b.name)
	return uintptr(p), nil
}

func (b *posixBackend) release(addr, size uintptr) error {
	return os.NewSyscallError("munmap", unix.MunmapPtr(unsafe.Pointer(addr), size))
}

// setCommit maps over the range with MAP_FIXED.  This is safe as the
// caller owns the whole range, and unlike mprotect it really drops
// the pages on decommit.  The new mapping loses any name so it is
// named again.
func (b *posixBackend) setCommit(addr, size uintptr, commit bool) (uintptr, error) {
	p, err := unix.MmapPtr(-1, 0, unsafe.Pointer(addr), size, protection(commit), b.flags|unix.MAP_FIXED)
	if err != nil {
		return 0, os.NewSyscallError("mmap", err)
	}
	nameMapping(uintptr(p), size, b.name)
	return uintptr(p), nil
}

func (b *posixBackend) purge(addr, size uintptr) (unzeroed bool) {
	if !b.canPurge {
		return true
	}
	// addr is mmap'd memory outside the Go heap
	err := unix.Madvise(unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), b.advice)
	return !b.zeros || err != nil
}

func (b *posixBackend) partialRelease() bool {
	return true
}
