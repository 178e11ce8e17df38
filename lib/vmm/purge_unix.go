//go:build unix && !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

package vmm

// purgeAdvice reports no usable discard primitive so Purge is a
// no-op.
func purgeAdvice(lazy bool) (advice int, zeros bool, ok bool) {
	return 0, false, false
}
