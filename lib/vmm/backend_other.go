//go:build !unix && !windows

package vmm

// Nothing can be mapped so there is nothing to overcommit against.
func osOvercommits() bool {
	return true
}

func mapFlags(overcommit bool) MapFlags {
	return 0
}

// unsupportedBackend is used where the OS has no virtual memory
// interface reachable from Go, e.g. plan9 and js.
type unsupportedBackend struct{}

func newBackend(p Policy) backend {
	return unsupportedBackend{}
}

func (unsupportedBackend) String() string {
	return "unsupported"
}

func (unsupportedBackend) reserve(addr, size uintptr, commit bool) (uintptr, error) {
	return 0, ErrUnsupported
}

func (unsupportedBackend) release(addr, size uintptr) error {
	return ErrUnsupported
}

func (unsupportedBackend) setCommit(addr, size uintptr, commit bool) (uintptr, error) {
	return 0, ErrUnsupported
}

func (unsupportedBackend) purge(addr, size uintptr) (unzeroed bool) {
	return true
}

func (unsupportedBackend) partialRelease() bool {
	return false
}
