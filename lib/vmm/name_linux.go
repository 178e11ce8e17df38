package vmm

import (
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// nameMapping labels the mapping so it shows as [anon:<name>] in
// /proc/<pid>/maps.  The label is only a debugging aid so failure is
// ignored, which includes the EINVAL from kernels before 5.17 or
// built without CONFIG_ANON_VMA_NAME.
func nameMapping(addr, size uintptr, name *byte) {
	if name == nil {
		return
	}
	_ = unix.Prctl(unix.PR_SET_VMA, unix.PR_SET_VMA_ANON_NAME, addr, size, uintptr(unsafe.Pointer(name)))
	runtime.KeepAlive(name)
}
