// Package cmd implements the vmm command
//
// It is in a sub package so it's internals can be re-used elsewhere
package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/pkg/errors"
	"github.com/rclone/vmm/fs"
	"github.com/rclone/vmm/fs/config/configflags"
	"github.com/rclone/vmm/fs/config/flags"
	"github.com/rclone/vmm/fs/fserrors"
	fslog "github.com/rclone/vmm/fs/log"
	"github.com/rclone/vmm/lib/buildinfo"
	"github.com/rclone/vmm/lib/env"
	"github.com/rclone/vmm/lib/exitcode"
	"github.com/rclone/vmm/lib/mmap"
	"github.com/rclone/vmm/lib/pool"
	"github.com/rclone/vmm/lib/vmm"
	"github.com/spf13/cobra"
)

// Globals
var (
	// Errors
	errorNotEnoughArguments = errors.New("not enough arguments")
	errorTooManyArguments   = errors.New("too many arguments")

	// ErrorCheckFailed should be returned by commands which found the
	// OS not behaving as expected
	ErrorCheckFailed = errors.New("check failed")

	// closes the log file if any
	closeLog = func() error { return nil }
)

// Root is the main vmm command
var Root = &cobra.Command{
	Use:   "vmm",
	Short: "Inspect and exercise the virtual memory layer - " + fs.Version,
	Long: `
vmm drives the virtual memory layer which sits beneath a memory
allocator.  It reserves and releases address space, commits and
decommits the physical memory behind it, purges unused pages and trims
over-sized reservations down to an aligned window.

Use "vmm info" to see what the layer detected about this OS and
"vmm selftest" to check the OS behaves the way the layer expects.
`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: func(command *cobra.Command, args []string) error { return initConfig(command) },
}

func init() {
	ci := fs.GetConfig(context.Background())
	flagSet := Root.PersistentFlags()
	configflags.AddFlags(ci, flagSet)
	flags.StringVarP(flagSet, &fslog.Opt.File, "log-file", "", fslog.Opt.File, "Log everything to this file"+env.ShellExpandHelp)
	flags.StringVarP(flagSet, &fslog.Opt.Format, "log-format", "", fslog.Opt.Format, "Comma separated list of log format options")
}

// ShowVersion prints the version to stdout
func ShowVersion() {
	osVersion, osKernel := buildinfo.GetOSVersion()
	if osVersion == "" {
		osVersion = "unknown"
	}
	if osKernel == "" {
		osKernel = "unknown"
	}

	linking, tagString := buildinfo.GetLinkingAndTags()

	fmt.Printf("vmm %s\n", fs.Version)
	fmt.Printf("- os/version: %s\n", osVersion)
	fmt.Printf("- os/kernel: %s\n", osKernel)
	fmt.Printf("- os/type: %s\n", runtime.GOOS)
	fmt.Printf("- os/arch: %s\n", runtime.GOARCH)
	fmt.Printf("- go/version: %s\n", runtime.Version())
	fmt.Printf("- go/linking: %s\n", linking)
	fmt.Printf("- go/tags: %s\n", tagString)
}

// NewManager makes a vmm.Manager from the OS policy and the config
// in ctx.
func NewManager(ctx context.Context) *vmm.Manager {
	policy := vmm.Bootstrap()
	ci := fs.GetConfig(ctx)
	policy.LazyPurge = ci.LazyPurge
	policy.Name = ci.MapName
	m := vmm.New(policy)
	fs.Debugf(m, "Using policy %v", policy)
	return m
}

// NewPool makes a buffer pool sized by the config in ctx which maps
// its buffers with m if --use-mmap is set.
func NewPool(ctx context.Context, m *vmm.Manager) *pool.Pool {
	ci := fs.GetConfig(ctx)
	if ci.UseMmap {
		return pool.NewWithAllocator(ci.PoolFlushTime, int(ci.BufferSize), ci.PoolSize, mmap.New(m))
	}
	return pool.New(ci.PoolFlushTime, int(ci.BufferSize), ci.PoolSize, false)
}

// Run the function and exit with a code matching the error it
// returns
func Run(cmd *cobra.Command, f func() error) {
	cmdErr := f()
	fs.Debugf(nil, "%d go routines active", runtime.NumGoroutine())
	if cmdErr != nil {
		log.Printf("Failed to %s: %v", cmd.Name(), cmdErr)
	}
	resolveExitCode(cmdErr)
}

// CheckArgs checks there are enough arguments and prints a message if not
func CheckArgs(MinArgs, MaxArgs int, cmd *cobra.Command, args []string) {
	if len(args) < MinArgs {
		_ = cmd.Usage()
		_, _ = fmt.Fprintf(os.Stderr, "Command %s needs %d arguments minimum: you provided %d non flag arguments: %q\n", cmd.Name(), MinArgs, len(args), args)
		resolveExitCode(errorNotEnoughArguments)
	} else if len(args) > MaxArgs {
		_ = cmd.Usage()
		_, _ = fmt.Fprintf(os.Stderr, "Command %s needs %d arguments maximum: you provided %d non flag arguments: %q\n", cmd.Name(), MaxArgs, len(args), args)
		resolveExitCode(errorTooManyArguments)
	}
}

// initConfig is run by cobra after initialising the flags
func initConfig(command *cobra.Command) error {
	ci := fs.GetConfig(context.Background())

	// Finish parsing any command line flags
	if err := configflags.SetFlags(ci, command.Flags()); err != nil {
		return err
	}

	// Start the logger
	closer, err := fslog.InitLogging(ci)
	if err != nil {
		return err
	}
	closeLog = closer

	// Write the args for debug purposes
	fs.Debugf("vmm", "Version %q starting with parameters %q", fs.Version, os.Args)
	return nil
}

// exitCode works out the process exit status for err
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitcode.Success
	case fserrors.IsFatalError(err):
		return exitcode.FatalError
	case errors.Is(err, ErrorCheckFailed):
		return exitcode.CheckFailed
	case errors.Is(err, vmm.ErrReserve), errors.Is(err, vmm.ErrPlacement):
		return exitcode.ReserveError
	case errors.Is(err, errorNotEnoughArguments), errors.Is(err, errorTooManyArguments):
		return exitcode.UsageError
	default:
		return exitcode.UncategorizedError
	}
}

// osExit is os.Exit, swapped out in tests
var osExit = os.Exit

func resolveExitCode(err error) {
	if closeErr := closeLog(); closeErr != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to close log file: %v\n", closeErr)
	}
	osExit(exitCode(err))
}

// Main runs vmm interpreting flags and commands out of os.Args
func Main() {
	if err := Root.Execute(); err != nil {
		log.Printf("Fatal error: %v", err)
		osExit(exitcode.UsageError)
	}
}
