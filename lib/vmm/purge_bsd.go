//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package vmm

import "golang.org/x/sys/unix"

// purgeAdvice picks the madvise advice for Purge.  MADV_DONTNEED is
// only a hint on these systems so MADV_FREE is used and no zero fill
// is promised.
func purgeAdvice(lazy bool) (advice int, zeros bool, ok bool) {
	return unix.MADV_FREE, false, true
}
