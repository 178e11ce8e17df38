package vmm

// backend is the platform mapping primitive set.  One is chosen by
// New and never changes for the life of the Manager.
//
// All methods take raw byte counts and page aligned addresses and do
// no validation of their own.
type backend interface {
	// String is the name of the primitive family, e.g. "mmap"
	String() string

	// reserve maps size bytes of fresh address space, treating addr
	// as a hint only.  It must never replace an existing mapping.
	reserve(addr, size uintptr, commit bool) (uintptr, error)

	// release unmaps the range, dropping any commitment with it.
	release(addr, size uintptr) error

	// setCommit applies the commit state in place and returns the
	// address the OS actually used.
	setCommit(addr, size uintptr, commit bool) (uintptr, error)

	// purge discards the physical pages backing the range and
	// reports whether they might not read back as zero.
	purge(addr, size uintptr) (unzeroed bool)

	// partialRelease is true if a sub-range of a reservation can be
	// released leaving the rest mapped.
	partialRelease() bool
}
