package vmm

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies the failures the VMM can report
type Kind int

// Kinds of failure
const (
	KindReserve   Kind = iota + 1 // OS refused to hand out address space
	KindPlacement                 // OS mapped, but not where asked
	KindRelease                   // OS refused to take back a valid mapping
	KindCommit                    // OS could not change the commit state in place
)

// Sentinel errors - use errors.Is to test an error returned from the
// Manager against these.
var (
	ErrReserve     = errors.New("vmm: reservation failed")
	ErrPlacement   = errors.New("vmm: mapped at the wrong address")
	ErrRelease     = errors.New("vmm: release failed")
	ErrCommit      = errors.New("vmm: commit state change failed")
	ErrUnsupported = errors.New("vmm: not supported on this platform")
)

func (k Kind) sentinel() error {
	switch k {
	case KindReserve:
		return ErrReserve
	case KindPlacement:
		return ErrPlacement
	case KindRelease:
		return ErrRelease
	case KindCommit:
		return ErrCommit
	}
	return nil
}

// String turns a Kind into a string
func (k Kind) String() string {
	if err := k.sentinel(); err != nil {
		return err.Error()
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is returned by the Manager for every failure.  Err holds the
// underlying OS error (usually an *os.SyscallError) and is nil when
// the OS call succeeded but its result was unusable.
type Error struct {
	Kind Kind
	Addr uintptr
	Size uintptr
	Err  error
}

// Error satisfies the error interface
func (e *Error) Error() string {
	s := fmt.Sprintf("%v at %#x+%d", e.Kind, e.Addr, e.Size)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Is matches the sentinel for the Kind
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// Unwrap returns the underlying OS error
func (e *Error) Unwrap() error {
	return e.Err
}
