// Package all imports all the commands
package all

import (
	// Active commands
	_ "github.com/rclone/vmm/cmd/info"
	_ "github.com/rclone/vmm/cmd/selftest"
	_ "github.com/rclone/vmm/cmd/version"
)
