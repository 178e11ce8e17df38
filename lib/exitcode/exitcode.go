// Package exitcode exports vmm's exit status numbers.
package exitcode

const (
	// Success is returned when vmm finished without error.
	Success = iota
	// UsageError is returned when there was a syntax or usage error in the arguments.
	UsageError
	// UncategorizedError is returned for any error not categorised otherwise.
	UncategorizedError
	// ReserveError is returned when the OS refused to hand out address space.
	ReserveError
	// CheckFailed is returned when a self test found the OS misbehaving.
	CheckFailed
	// FatalError is returned when the OS refused to release a mapping.
	FatalError
)
