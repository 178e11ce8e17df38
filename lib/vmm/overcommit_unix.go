//go:build unix && !linux && !freebsd

package vmm

const mapNoReserve = 0

// osOvercommits has nothing to query here.  These systems back
// anonymous mappings lazily so assume they overcommit.
func osOvercommits() bool {
	return true
}
