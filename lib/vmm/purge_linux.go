package vmm

import "golang.org/x/sys/unix"

// purgeAdvice picks the madvise advice for Purge.  MADV_DONTNEED
// makes the pages read back as zero, MADV_FREE leaves the old
// contents until the kernel actually reclaims them.
func purgeAdvice(lazy bool) (advice int, zeros bool, ok bool) {
	if lazy {
		return unix.MADV_FREE, false, true
	}
	return unix.MADV_DONTNEED, true, true
}
