// Package log provides logging setup for vmm
package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/rclone/vmm/fs"
	"github.com/rclone/vmm/lib/env"
	"github.com/sirupsen/logrus"
)

// Options contains options for controlling the logging
type Options struct {
	File   string // Log everything to this file
	Format string // Comma separated list of log format options
}

// DefaultOpt is the default values used for Opt
var DefaultOpt = Options{
	Format: "date,time",
}

// Opt is the options for the logger
var Opt = DefaultOpt

// parseFormat turns a comma separated format list into log flags
func parseFormat(format string) (flags int, err error) {
	for _, item := range strings.Split(format, ",") {
		switch strings.TrimSpace(item) {
		case "":
		case "date":
			flags |= log.Ldate
		case "time":
			flags |= log.Ltime
		case "microseconds":
			flags |= log.Lmicroseconds
		case "UTC":
			flags |= log.LUTC
		case "longfile":
			flags |= log.Llongfile
		case "shortfile":
			flags |= log.Lshortfile
		case "pid":
			log.SetPrefix(fmt.Sprintf("%d ", os.Getpid()))
		default:
			return 0, fmt.Errorf("unknown log format %q", item)
		}
	}
	return flags, nil
}

// logrusLevel converts the configured level for the JSON logger
func logrusLevel(level fs.LogLevel) logrus.Level {
	switch {
	case level >= fs.LogLevelDebug:
		return logrus.DebugLevel
	case level >= fs.LogLevelInfo:
		return logrus.InfoLevel
	case level >= fs.LogLevelNotice:
		return logrus.WarnLevel
	default:
		return logrus.ErrorLevel
	}
}

// InitLogging starts the logging as per the command line flags and
// the config passed in.  It returns a func to close any log file.
func InitLogging(ci *fs.ConfigInfo) (closer func() error, err error) {
	flags, err := parseFormat(Opt.Format)
	if err != nil {
		return nil, err
	}
	log.SetFlags(flags)

	var out io.Writer = os.Stderr
	closer = func() error { return nil }
	if Opt.File != "" {
		f, err := os.OpenFile(env.ShellExpand(Opt.File), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0640)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		closer = f.Close
	}
	log.SetOutput(out)

	logrus.SetOutput(out)
	logrus.SetLevel(logrusLevel(ci.LogLevel))
	if ci.UseJSONLog {
		logrus.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000000Z07:00",
		})
	}
	return closer, nil
}
