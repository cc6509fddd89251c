package source

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a path, revision or transaction does
	// not exist on the server.
	ErrNotFound = errors.New("not found")

	// ErrNotLoggedIn is returned by every operation before Login or
	// after Logout.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrNoWorkingFolder is returned by Get when no binding covers the
	// requested path.
	ErrNoWorkingFolder = errors.New("no working folder")
)

// WorkingFolderConflictError reports existing bindings that prevent a
// new working folder assignment.
type WorkingFolderConflictError struct {
	// Path is the server path being bound
	Path string

	// Conflicts are the server paths whose bindings collide
	Conflicts []string
}

func (e *WorkingFolderConflictError) Error() string {
	return fmt.Sprintf("working folder for %s conflicts with %s", e.Path, strings.Join(e.Conflicts, ", "))
}
