// Package vcs provides the interface vault2git uses to drive the target
// version control system.
//
// The migration engine never talks to git directly. It goes through the VCS
// interface, whose git implementation (internal/vcs/git) shells out to the
// configured git binary through a Runner. Keeping the engine behind this
// interface lets tests replace the target repository with an in-memory fake.
//
// # Usage
//
//	runner, err := vcs.NewRunner(vcs.RunnerConfig{Command: "git", Dir: workDir})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	v, err := vcs.Open(vcs.TypeGit, workDir, runner)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	branch, err := v.CurrentRef(ctx)
//
// # Implementations
//
//   - internal/vcs/git: git implementation using the command line tool
package vcs

import (
	"context"
	"time"
)

// Type represents the VCS backend type
type Type string

const (
	// TypeGit indicates a git repository
	TypeGit Type = "git"
)

// String returns the string representation of the VCS type
func (t Type) String() string {
	return string(t)
}

// VCS defines the target repository operations needed by the migration engine.
type VCS interface {
	// ===================
	// Identity
	// ===================

	// Name returns the VCS type
	Name() Type

	// Version returns the VCS binary version string (e.g. "2.39.0")
	Version(ctx context.Context) (string, error)

	// RepoRoot returns the repository root directory path.
	RepoRoot() (string, error)

	// ===================
	// Reference Operations
	// ===================

	// CurrentRef returns the current branch name.
	// Works on an unborn branch (no commits yet).
	CurrentRef(ctx context.Context) (string, error)

	// RefExists returns true if the named branch exists
	RefExists(ctx context.Context, name string) bool

	// Checkout switches the working tree to the named branch, discarding
	// local modifications. When orphan is true a new branch without
	// history is created instead.
	Checkout(ctx context.Context, name string, orphan bool) error

	// CommitMessage returns the full message of the commit offset steps
	// behind the tip of ref (offset 0 is the tip itself).
	// Returns ErrRefNotFound once history is exhausted.
	CommitMessage(ctx context.Context, ref string, offset int) (string, error)

	// ===================
	// Commit Operations
	// ===================

	// AddAll stages every change in the working tree, including deletions
	// and files that would otherwise be ignored.
	AddAll(ctx context.Context) error

	// HasChanges returns true if there is anything staged or unstaged.
	HasChanges(ctx context.Context) (bool, error)

	// Commit creates a commit and returns the raw output of the commit
	// command. Callers parse the summary line to find the new commit id.
	Commit(ctx context.Context, opts CommitOptions) (CommitResult, error)

	// ===================
	// Tags
	// ===================

	// TagExists returns true if the named tag exists
	TagExists(ctx context.Context, name string) bool

	// CreateTag creates an annotated tag
	CreateTag(ctx context.Context, opts TagOptions) error

	// ===================
	// Maintenance
	// ===================

	// GC runs an automatic garbage collection pass
	GC(ctx context.Context) error

	// Finalize prepares the repository for read access by other clients
	// (git: update-server-info for dumb transports).
	Finalize(ctx context.Context) error

	// ===================
	// Raw Command Execution
	// ===================

	// Exec executes a raw VCS command (escape hatch).
	Exec(ctx context.Context, args ...string) ([]string, error)
}

// ===================
// Supporting Types
// ===================

// CommitOptions configures a commit operation
type CommitOptions struct {
	// Message is the commit message (required). It is passed on standard
	// input so that multi-line messages survive untouched.
	Message string

	// Author overrides the commit author (format: "Name <email>")
	Author string

	// Date overrides the author date
	Date time.Time

	// AllowEmpty allows creating a commit with no changes
	AllowEmpty bool
}

// CommitResult is the outcome of a commit command
type CommitResult struct {
	// Output holds the standard output lines of the commit command.
	// For git the first line is the summary, e.g. "[main 1a2b3c4] message".
	Output []string

	// Elapsed is how long the command took
	Elapsed time.Duration
}

// TagOptions configures tag creation
type TagOptions struct {
	// Name is the tag name
	Name string

	// Target is the commit the tag points at
	Target string

	// Message is the tag annotation
	Message string
}
