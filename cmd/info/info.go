// Package info provides the info command.
package info

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rclone/vmm/cmd"
	"github.com/rclone/vmm/fs"
	"github.com/rclone/vmm/lib/vmm"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/spf13/cobra"
)

func init() {
	cmd.Root.AddCommand(commandDefinition)
}

var commandDefinition = &cobra.Command{
	Use:   "info",
	Short: `Show what the virtual memory layer detected about this OS.`,
	Long: `Prints the policy worked out at bootstrap: whether the OS
overcommits, the flags used for new mappings and which purge primitive
is in use, along with the mapping backend and the page size.

The system wide commit figures are shown where the OS reports them, so
the overcommit setting can be checked against the real limits.

    $ vmm info
    backend:        vmm/mmap
    page size:      4 KiB
    overcommit:     true
    map flags:      0x4022
    lazy purge:     false
    map name:       vmm
    memory total:   31.241 GiB
    memory free:    18.518 GiB
    commit limit:   19.521 GiB
    committed:      12.102 GiB
`,
	Run: func(command *cobra.Command, args []string) {
		cmd.CheckArgs(0, 0, command, args)
		cmd.Run(command, func() error {
			ctx := context.Background()
			m := cmd.NewManager(ctx)
			vm, err := mem.VirtualMemoryWithContext(ctx)
			if err != nil {
				fs.Infof(nil, "Couldn't read system memory figures: %v", err)
				vm = nil
			}
			return report(os.Stdout, m, vm)
		})
	},
}

// report writes the policy of m and the memory figures in vm to out.
// vm may be nil.
func report(out io.Writer, m *vmm.Manager, vm *mem.VirtualMemoryStat) (err error) {
	line := func(name string, value interface{}) {
		if err == nil {
			_, err = fmt.Fprintf(out, "%-16s%v\n", name+":", value)
		}
	}
	policy := m.Policy()
	line("backend", m)
	line("page size", fs.SizeSuffix(m.PageSize()).ByteShortUnit())
	line("overcommit", policy.Overcommit)
	line("map flags", policy.Flags)
	line("lazy purge", policy.LazyPurge)
	line("map name", policy.Name)
	if vm != nil {
		line("memory total", fs.SizeSuffix(vm.Total).ByteShortUnit())
		line("memory free", fs.SizeSuffix(vm.Available).ByteShortUnit())
		if vm.CommitLimit != 0 {
			line("commit limit", fs.SizeSuffix(vm.CommitLimit).ByteShortUnit())
			line("committed", fs.SizeSuffix(vm.CommittedAS).ByteShortUnit())
		}
	}
	return err
}
