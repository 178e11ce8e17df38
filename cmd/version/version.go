// Package version provides the version command.
package version

import (
	"github.com/rclone/vmm/cmd"
	"github.com/spf13/cobra"
)

func init() {
	cmd.Root.AddCommand(commandDefinition)
}

var commandDefinition = &cobra.Command{
	Use:   "version",
	Short: `Show the version number.`,
	Long: `Show the vmm version number, the go version, the build target
OS and architecture, the runtime OS and kernel version and bitness,
build tags and the type of executable (static or dynamic).

For example:

    $ vmm version
    vmm v0.1.0
    - os/version: ubuntu 22.04 (64 bit)
    - os/kernel: 6.5.0-41-generic (x86_64)
    - os/type: linux
    - os/arch: amd64
    - go/version: go1.22.4
    - go/linking: static
    - go/tags: none
`,
	Run: func(command *cobra.Command, args []string) {
		cmd.CheckArgs(0, 0, command, args)
		cmd.ShowVersion()
	},
}
