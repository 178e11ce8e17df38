package vmm

import (
	"os"

	"golang.org/x/sys/unix"
)

const mapNoReserve = unix.MAP_NORESERVE

var overcommitPath = "/proc/sys/vm/overcommit_memory"

// osOvercommits reads vm.overcommit_memory.  Modes 0 (heuristic) and
// 1 (always) overcommit, mode 2 (never) does strict accounting.
//
// If the setting can't be read, strict accounting is assumed.
func osOvercommits() bool {
	buf, err := os.ReadFile(overcommitPath)
	if err != nil {
		return false
	}
	return parseOvercommit(buf)
}

func parseOvercommit(buf []byte) bool {
	return len(buf) > 0 && (buf[0] == '0' || buf[0] == '1')
}
