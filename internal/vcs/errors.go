package vcs

import (
	"errors"
	"fmt"
)

// Common errors returned by VCS operations.
//
// These errors can be checked using errors.Is() for proper error handling:
//
//	if errors.Is(err, vcs.ErrRefNotFound) {
//	    // history exhausted
//	}
var (
	// ErrNotInVCS is returned when the working directory is not inside
	// a repository of the expected type.
	ErrNotInVCS = errors.New("not in a VCS repository")

	// ErrVCSNotAvailable is returned when the VCS binary is not installed,
	// not in PATH, or too old.
	ErrVCSNotAvailable = errors.New("VCS binary not available")

	// ErrRefNotFound is returned when a reference (or an ancestor offset
	// of it) does not exist.
	ErrRefNotFound = errors.New("reference not found")

	// ErrDetached is returned when an operation requires being on a
	// branch but HEAD is detached.
	ErrDetached = errors.New("not on a branch")

	// ErrCommandFailed is returned (wrapped in a CommandError) when the VCS
	// command exits with a non-zero status.
	ErrCommandFailed = errors.New("command failed")

	// ErrTimeout is returned when a VCS operation exceeds its timeout.
	ErrTimeout = errors.New("operation timed out")

	// ErrUnknownType is returned by Open for an unregistered VCS type.
	ErrUnknownType = errors.New("unknown VCS type")
)

// CommandError describes a command that exited with a non-zero status.
type CommandError struct {
	// Command is the quoted command line
	Command string

	// ExitCode is the process exit code, or -1 if it never started
	ExitCode int

	// Stderr is the trimmed standard error output
	Stderr string

	// Err is the underlying error from os/exec
	Err error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: exit status %d: %s", e.Command, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s: exit status %d", e.Command, e.ExitCode)
}

// Is reports ErrCommandFailed for every command error.
func (e *CommandError) Is(target error) bool {
	return target == ErrCommandFailed
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if the error indicates a non-recoverable state
// that requires manual intervention.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	// Not in VCS means we can't do anything
	if errors.Is(err, ErrNotInVCS) {
		return true
	}

	// Binary not available means we can't execute commands
	if errors.Is(err, ErrVCSNotAvailable) {
		return true
	}

	return false
}
