//go:build unix && !linux

package vmm

// nameMapping does nothing as only Linux can name anonymous mappings
func nameMapping(addr, size uintptr, name *byte) {}
