package vmm

import (
	"os"

	"golang.org/x/sys/windows"
)

// Windows keeps real commit charge for every committed page so the
// commit state is always honoured.
func osOvercommits() bool {
	return false
}

// mapFlags is unused by VirtualAlloc, the allocation type is chosen
// per call.
func mapFlags(overcommit bool) MapFlags {
	return 0
}

// windowsBackend reserves and commits with VirtualAlloc and releases
// and decommits with VirtualFree.
type windowsBackend struct{}

func newBackend(p Policy) backend {
	return windowsBackend{}
}

func (windowsBackend) String() string {
	return "VirtualAlloc"
}

// reserve relies on VirtualAlloc failing rather than moving the
// mapping if it can't use the address given.
func (windowsBackend) reserve(addr, size uintptr, commit bool) (uintptr, error) {
	allocType := uint32(windows.MEM_RESERVE)
	if commit {
		allocType |= windows.MEM_COMMIT
	}
	p, err := windows.VirtualAlloc(addr, size, allocType, windows.PAGE_READWRITE)
	if err != nil {
		return 0, os.NewSyscallError("VirtualAlloc", err)
	}
	return p, nil
}

// release can only free a whole reservation, size is ignored.
func (windowsBackend) release(addr, size uintptr) error {
	return os.NewSyscallError("VirtualFree", windows.VirtualFree(addr, 0, windows.MEM_RELEASE))
}

func (windowsBackend) setCommit(addr, size uintptr, commit bool) (uintptr, error) {
	if commit {
		p, err := windows.VirtualAlloc(addr, size, windows.MEM_COMMIT, windows.PAGE_READWRITE)
		if err != nil {
			return 0, os.NewSyscallError("VirtualAlloc", err)
		}
		return p, nil
	}
	err := windows.VirtualFree(addr, size, windows.MEM_DECOMMIT)
	if err != nil {
		return 0, os.NewSyscallError("VirtualFree", err)
	}
	return addr, nil
}

// purge uses MEM_RESET which never promises zero pages.
func (windowsBackend) purge(addr, size uintptr) (unzeroed bool) {
	_, _ = windows.VirtualAlloc(addr, size, windows.MEM_RESET, windows.PAGE_READWRITE)
	return true
}

func (windowsBackend) partialRelease() bool {
	return false
}
