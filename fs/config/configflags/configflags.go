// Package configflags defines the flags used by vmm.  It is
// decoupled into a separate package so it can be replaced.
package configflags

// Options set by command line flags
import (
	"github.com/pkg/errors"
	"github.com/rclone/vmm/fs"
	"github.com/rclone/vmm/fs/config/flags"
	"github.com/spf13/pflag"
)

var (
	// these will get interpreted into ConfigInfo via SetFlags() below
	verbose int
	quiet   bool
)

// AddFlags adds the global flags to the command
func AddFlags(ci *fs.ConfigInfo, flagSet *pflag.FlagSet) {
	// NB defaults which aren't the zero for the type should be set in fs/config.go NewConfig
	flags.CountVarP(flagSet, &verbose, "verbose", "v", "Print lots more stuff (repeat for more)")
	flags.BoolVarP(flagSet, &quiet, "quiet", "q", false, "Print as little stuff as possible")
	flags.FVarP(flagSet, &ci.LogLevel, "log-level", "", "Log level DEBUG|INFO|NOTICE|ERROR")
	flags.BoolVarP(flagSet, &ci.UseJSONLog, "use-json-log", "", ci.UseJSONLog, "Use json log format.")
	flags.BoolVarP(flagSet, &ci.AbortOnError, "abort-on-error", "", ci.AbortOnError, "Exit if the OS refuses to release a mapping.")
	flags.BoolVarP(flagSet, &ci.LazyPurge, "lazy-purge", "", ci.LazyPurge, "Purge with MADV_FREE where available instead of zeroing.")
	flags.StringVarP(flagSet, &ci.MapName, "map-name", "", ci.MapName, "Name shown for mappings in /proc/<pid>/maps where supported, empty to disable.")
	flags.BoolVarP(flagSet, &ci.UseMmap, "use-mmap", "", ci.UseMmap, "Use mmap allocator for pooled buffers.")
	flags.FVarP(flagSet, &ci.BufferSize, "buffer-size", "", "Size of each pooled buffer.")
	flags.IntVarP(flagSet, &ci.PoolSize, "pool-size", "", ci.PoolSize, "Maximum number of free buffers kept in the pool.")
	flags.DurationVarP(flagSet, &ci.PoolFlushTime, "pool-flush-time", "", ci.PoolFlushTime, "Interval at which unused pooled buffers are freed.")
}

// SetFlags converts any flags into config which weren't straight forward
func SetFlags(ci *fs.ConfigInfo, flagSet *pflag.FlagSet) error {
	if verbose >= 2 {
		ci.LogLevel = fs.LogLevelDebug
	} else if verbose >= 1 {
		ci.LogLevel = fs.LogLevelInfo
	}
	if quiet {
		if verbose > 0 {
			return errors.New("can't set -v and -q")
		}
		ci.LogLevel = fs.LogLevelError
	}
	logLevelFlag := flagSet.Lookup("log-level")
	if logLevelFlag != nil && logLevelFlag.Changed {
		if verbose > 0 {
			return errors.New("can't set -v and --log-level")
		}
		if quiet {
			return errors.New("can't set -q and --log-level")
		}
	}
	page := fs.SizeSuffix(4096)
	if ci.BufferSize < page {
		return errors.Errorf("--buffer-size must be at least %v", page)
	}
	if ci.PoolSize < 0 {
		return errors.Errorf("--pool-size can't be negative: %d", ci.PoolSize)
	}
	if ci.PoolFlushTime <= 0 {
		return errors.Errorf("--pool-flush-time must be positive: %v", ci.PoolFlushTime)
	}
	return nil
}
