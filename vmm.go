// Inspect and exercise the virtual memory layer beneath an allocator
package main

import (
	"github.com/rclone/vmm/cmd"
	_ "github.com/rclone/vmm/cmd/all" // import all commands
)

func main() {
	cmd.Main()
}
