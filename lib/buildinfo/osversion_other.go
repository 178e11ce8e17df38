//go:build ios || plan9 || js || wasip1

package buildinfo

// GetOSVersion returns OS version, kernel and bitness
func GetOSVersion() (osVersion, osKernel string) {
	return "", ""
}
