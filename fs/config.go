package fs

import (
	"context"
	"strings"
	"time"
)

// Global
var (
	// globalConfig for vmm
	globalConfig = NewConfig()

	// Version of vmm, overridden at link time
	Version = "v0.1.0-DEV"
)

// ConfigInfo is the global config for vmm and the collaborators
// built on top of it.
type ConfigInfo struct {
	LogLevel      LogLevel
	UseJSONLog    bool
	AbortOnError  bool // exit the process if the OS refuses to release a mapping
	LazyPurge     bool // use MADV_FREE rather than MADV_DONTNEED where both exist
	MapName       string
	UseMmap       bool
	BufferSize    SizeSuffix
	PoolSize      int
	PoolFlushTime time.Duration
}

// NewConfig creates a new config with everything set to the default
// value.  These are the ultimate defaults and are overridden by the
// command line flags.
func NewConfig() *ConfigInfo {
	c := new(ConfigInfo)

	// Set any values which aren't the zero for the type
	c.LogLevel = LogLevelNotice
	c.UseMmap = true
	c.MapName = "vmm"
	c.BufferSize = SizeSuffix(1 << 20)
	c.PoolSize = 64
	c.PoolFlushTime = 60 * time.Second

	return c
}

type configContextKeyType struct{}

// Context key for config
var configContextKey = configContextKeyType{}

// GetConfig returns the global or context sensitive context
func GetConfig(ctx context.Context) *ConfigInfo {
	if ctx == nil {
		return globalConfig
	}
	c := ctx.Value(configContextKey)
	if c == nil {
		return globalConfig
	}
	return c.(*ConfigInfo)
}

// AddConfig returns a mutable config structure based on a shallow
// copy of that found in ctx and returns a new context with that added
// to it.
func AddConfig(ctx context.Context) (context.Context, *ConfigInfo) {
	c := GetConfig(ctx)
	cCopy := new(ConfigInfo)
	*cCopy = *c
	newCtx := context.WithValue(ctx, configContextKey, cCopy)
	return newCtx, cCopy
}

// OptionToEnv converts an option name, e.g. "abort-on-error" into an
// environment name "VMM_ABORT_ON_ERROR"
func OptionToEnv(name string) string {
	return "VMM_" + strings.ToUpper(strings.Replace(name, "-", "_", -1))
}
