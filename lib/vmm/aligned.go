package vmm

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/rclone/vmm/fs"
)

// alignUp rounds x up to a multiple of alignment which must be a
// power of two.
func alignUp(x, alignment uintptr) uintptr {
	return (x + alignment - 1) &^ (alignment - 1)
}

// ReserveAligned maps size bytes of new address space starting on a
// multiple of alignment.
//
// size must be a non zero multiple of the page size and alignment a
// power of two no smaller than the page size.
//
// It first tries a plain reservation in case the OS happens to return
// an aligned address.  Failing that it over-reserves by alignment
// less a page and uses Trim to cut out the aligned window.  If Trim
// has to remap and loses a race for the address with another thread
// it starts again.
func (m *Manager) ReserveAligned(size, alignment uintptr, commit bool) (uintptr, bool, error) {
	if size == 0 || size%m.pageSize != 0 || alignment < m.pageSize || alignment&(alignment-1) != 0 {
		panic(fmt.Sprintf("vmm: bad aligned reservation of %d bytes aligned to %d", size, alignment))
	}
	ret, committed, err := m.Reserve(0, size, commit)
	if err != nil {
		return 0, false, err
	}
	if ret&(alignment-1) == 0 {
		return ret, committed, nil
	}
	if err := m.Release(ret, size); err != nil {
		return 0, false, err
	}

	allocSize := size + alignment - m.pageSize
	if allocSize < size {
		return 0, false, &Error{Kind: KindReserve, Size: size, Err: errors.Errorf("size overflow aligning to %d", alignment)}
	}
	for {
		base, baseCommitted, err := m.Reserve(0, allocSize, commit)
		if err != nil {
			return 0, false, err
		}
		leadSize := alignUp(base, alignment) - base
		ret, committed, err = m.Trim(base, allocSize, leadSize, size, baseCommitted)
		if err == nil || errors.Is(err, ErrRelease) {
			return ret, committed, err
		}
		fs.Infof(m, "Aligned trim at %#x failed, retrying: %v", base+leadSize, err)
	}
}
