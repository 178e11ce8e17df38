// Package fserrors provides errors and error handling
package fserrors

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/rclone/vmm/fs"
	"github.com/rclone/vmm/lib/exitcode"
)

// Fataler is an optional interface for error as to whether the
// operation should cause the entire operation to finish immediately.
//
// This should be returned from Read or Write when the error means
// that the process state can no longer be trusted, for instance when
// the OS refused to release a mapping it handed out.
type Fataler interface {
	error
	Fatal() bool
}

// wrappedFatalError is an error wrapped so it will satisfy the
// Fataler interface and return true
type wrappedFatalError struct {
	error
}

// Fatal interface
func (err wrappedFatalError) Fatal() bool {
	return true
}

// Unwrap returns the underlying error
func (err wrappedFatalError) Unwrap() error {
	return err.error
}

// Check interface
var _ Fataler = wrappedFatalError{error(nil)}

// FatalError makes an error which indicates it is a fatal error and
// the process should stop if the abort policy says so.
func FatalError(err error) error {
	if err == nil {
		err = errors.New("fatal error")
	}
	return wrappedFatalError{err}
}

// IsFatalError returns true if err conforms to the Fatal interface
// and calling the Fatal method returns true.
func IsFatalError(err error) bool {
	var f Fataler
	if errors.As(err, &f) {
		return f.Fatal()
	}
	return false
}

// Exit is called by Escalate to terminate the process.  It is a
// variable so tests can intercept it.
var Exit = os.Exit

// Escalate applies the process abort policy to err.
//
// Nothing happens for a nil error.  Otherwise the error is logged and
// if it is fatal and the AbortOnError config is set the process exits
// with exitcode.FatalError.  It returns err so it can be used inline.
func Escalate(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	fs.Errorf(nil, "%v", err)
	if IsFatalError(err) && fs.GetConfig(ctx).AbortOnError {
		fs.Errorf(nil, "Fatal error received with --abort-on-error set - exiting")
		Exit(exitcode.FatalError)
	}
	return err
}
