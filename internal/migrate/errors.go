package migrate

import "errors"

var (
	// ErrNoRootWorkingFolder is returned when the source repository
	// root has no working folder binding. Items shared from outside a
	// branch can only be fetched through it.
	ErrNoRootWorkingFolder = errors.New("root working folder is not set")

	// ErrCheckoutFailed is returned when the target branch is still not
	// current after the configured number of checkout attempts.
	ErrCheckoutFailed = errors.New("cannot switch branches")

	// ErrResumeDeclined is returned when no resume point was found and
	// the operator refused to start from the first revision.
	ErrResumeDeclined = errors.New("restart from first revision declined")
)
