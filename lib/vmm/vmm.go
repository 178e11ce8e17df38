// Package vmm is the virtual memory layer beneath a memory allocator.
//
// It reserves and releases address space, commits and decommits the
// physical memory behind it, purges pages the allocator no longer
// needs and trims over-sized reservations down to an aligned window.
//
// The Manager keeps no record of what is mapped.  Ownership of every
// range belongs to the caller, and operations on disjoint ranges may
// run concurrently without any locking.  Operations on overlapping
// ranges must be serialised by the caller.
//
// Sizes and addresses are raw bytes and must already be page aligned;
// nothing is rounded here.
package vmm

import (
	"fmt"
	"os"
	"sync"

	"github.com/rclone/vmm/fs"
	"github.com/rclone/vmm/fs/fserrors"
)

// MapFlags is the platform flag bundle used for new reservations.
// It is opaque outside this package.
type MapFlags int

// String turns MapFlags into a string
func (f MapFlags) String() string {
	return fmt.Sprintf("%#x", int(f))
}

// Policy is the process wide state worked out by Bootstrap.  It is a
// plain value and is never modified after New.
type Policy struct {
	// Overcommit is set if the OS backs every mapping on demand
	// regardless of explicit commit requests.  Commit and Decommit
	// are no-ops when it is set.
	Overcommit bool

	// Flags are passed to the OS for every reservation.
	Flags MapFlags

	// LazyPurge prefers a discard primitive which leaves pages
	// readable with their old contents until the OS needs them
	// (MADV_FREE) over one that zeroes them (MADV_DONTNEED) on
	// systems with both.
	LazyPurge bool

	// Name labels every mapping made, where the OS supports it, so
	// it shows as [anon:<Name>] in /proc/<pid>/maps on Linux.  Empty
	// leaves mappings unnamed.
	Name string
}

// String turns a Policy into a string
func (p Policy) String() string {
	return fmt.Sprintf("overcommit=%v flags=%v lazy-purge=%v name=%q", p.Overcommit, p.Flags, p.LazyPurge, p.Name)
}

// Bootstrap detects the overcommit behaviour of the OS and derives
// the mapping flags from it.
//
// It may be called any number of times and returns the same Policy
// unless the OS setting is changed in between.
func Bootstrap() Policy {
	overcommit := osOvercommits()
	return Policy{
		Overcommit: overcommit,
		Flags:      mapFlags(overcommit),
	}
}

// Manager performs the virtual memory operations for a Policy
type Manager struct {
	policy   Policy
	b        backend
	pageSize uintptr
}

// New makes a Manager for the policy passed in, choosing the mapping
// backend for this platform.
func New(p Policy) *Manager {
	return newManager(p, newBackend(p))
}

func newManager(p Policy, b backend) *Manager {
	return &Manager{
		policy:   p,
		b:        b,
		pageSize: uintptr(os.Getpagesize()),
	}
}

var (
	defaultOnce    sync.Once
	defaultManager *Manager
)

// Default returns the process wide Manager built from Bootstrap on
// first use.
func Default() *Manager {
	defaultOnce.Do(func() {
		defaultManager = New(Bootstrap())
		fs.Debugf(defaultManager, "Bootstrapped with %v", defaultManager.policy)
	})
	return defaultManager
}

// String returns a description of the Manager for logging
func (m *Manager) String() string {
	return "vmm/" + m.b.String()
}

// Policy returns the policy the Manager was made with
func (m *Manager) Policy() Policy {
	return m.policy
}

// PageSize returns the OS page size in bytes
func (m *Manager) PageSize() uintptr {
	return m.pageSize
}

// Reserve maps size bytes of new address space.
//
// addr is a hint - if it is non zero and the OS places the mapping
// anywhere else the stray mapping is released and an error matching
// ErrPlacement is returned.  Existing mappings are never replaced.
//
// If the OS overcommits, commit is ignored and the range is always
// returned committed.  The returned bool is the commit state of the
// new range.
//
// There is no retry - a failure is final for this call.
func (m *Manager) Reserve(addr, size uintptr, commit bool) (uintptr, bool, error) {
	if size == 0 {
		panic("vmm: Reserve called with zero size")
	}
	if m.policy.Overcommit {
		commit = true
	}
	ret, err := m.b.reserve(addr, size, commit)
	if err != nil {
		return 0, false, &Error{Kind: KindReserve, Addr: addr, Size: size, Err: err}
	}
	if addr != 0 && ret != addr {
		fs.Debugf(m, "Wanted mapping at %#x but got %#x - releasing it", addr, ret)
		if err := m.Release(ret, size); err != nil {
			return 0, false, err
		}
		return 0, false, &Error{Kind: KindPlacement, Addr: addr, Size: size}
	}
	return ret, commit, nil
}

// Release unmaps a range previously returned from Reserve or Trim,
// dropping both the commitment and the address space.
//
// A failure here means the OS refused a well formed request.  It is
// logged and returned marked as fatal so the caller's abort policy
// (see fserrors.Escalate) can decide whether to carry on.
func (m *Manager) Release(addr, size uintptr) error {
	err := m.b.release(addr, size)
	if err != nil {
		fs.Errorf(m, "Error in release: %v", err)
		return fserrors.FatalError(&Error{Kind: KindRelease, Addr: addr, Size: size, Err: err})
	}
	return nil
}

// Trim cuts a reservation of allocSize bytes at addr down to the
// size bytes starting leadSize bytes in, returning the new base
// address addr+leadSize and its commit state.
//
// Where the OS allows releasing part of a mapping the lead and trail
// are unmapped and the middle is left alone.  If releasing either of
// them fails the retained address is still returned along with the
// error.
//
// Otherwise the whole reservation is released and the wanted window
// mapped again at the same address.  Any failure on that path, or the
// OS choosing a different address, returns 0 and an error, and no
// mapping is left behind.
func (m *Manager) Trim(addr, allocSize, leadSize, size uintptr, commit bool) (uintptr, bool, error) {
	if size == 0 || allocSize < leadSize+size {
		panic(fmt.Sprintf("vmm: can't trim %d bytes at offset %d from a reservation of %d bytes", size, leadSize, allocSize))
	}
	ret := addr + leadSize
	if m.b.partialRelease() {
		var err error
		trailSize := allocSize - leadSize - size
		if leadSize != 0 {
			err = m.Release(addr, leadSize)
		}
		if trailSize != 0 {
			if trailErr := m.Release(ret+size, trailSize); err == nil {
				err = trailErr
			}
		}
		return ret, commit, err
	}
	if err := m.Release(addr, allocSize); err != nil {
		return 0, false, err
	}
	return m.Reserve(ret, size, commit)
}

// Commit gives the reserved range physical backing in place.
//
// A nil error means the range is now committed, otherwise it is in
// whatever state it was before.  This always succeeds if the OS
// overcommits.
func (m *Manager) Commit(addr, size uintptr) error {
	return m.setCommit(addr, size, true)
}

// Decommit removes the physical backing from the reserved range in
// place, keeping the address space.
//
// A nil error means the range is now decommitted, otherwise it is in
// whatever state it was before.  This always succeeds if the OS
// overcommits.
func (m *Manager) Decommit(addr, size uintptr) error {
	return m.setCommit(addr, size, false)
}

func (m *Manager) setCommit(addr, size uintptr, commit bool) error {
	if m.policy.Overcommit {
		return nil
	}
	ret, err := m.b.setCommit(addr, size, commit)
	if err != nil {
		return &Error{Kind: KindCommit, Addr: addr, Size: size, Err: err}
	}
	if ret != addr {
		fs.Debugf(m, "Commit state change at %#x landed at %#x - releasing it", addr, ret)
		if err := m.Release(ret, size); err != nil {
			return err
		}
		return &Error{Kind: KindCommit, Addr: addr, Size: size, Err: ErrPlacement}
	}
	return nil
}

// Purge tells the OS that the pages backing the committed range may
// be reclaimed.  The address space stays reserved.
//
// It returns true if the range might not read back as zero, so the
// caller must clear it before relying on its contents.  If the OS has
// no suitable primitive this does nothing and returns true.
func (m *Manager) Purge(addr, size uintptr) (unzeroed bool) {
	return m.b.purge(addr, size)
}
