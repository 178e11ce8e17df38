package vmm

import "golang.org/x/sys/unix"

const mapNoReserve = 0

// osOvercommits reads the vm.overcommit sysctl.  The low two bits
// enable swap reservation accounting, if either is set the OS does
// not overcommit.
//
// If the sysctl can't be read, strict accounting is assumed.
func osOvercommits() bool {
	v, err := unix.SysctlUint32("vm.overcommit")
	if err != nil {
		return false
	}
	return v&0x3 == 0
}
