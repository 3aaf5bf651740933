package deploy

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors, one per stage. A [StageError] unwraps to the sentinel of
// the stage it occurred in, so callers can use errors.Is.
var (
	// ErrSync means the working copy could not be synchronized with the remote.
	ErrSync = errors.New("source sync failed")

	// ErrInstall means a dependency could not be resolved or installed.
	ErrInstall = errors.New("dependency install failed")

	// ErrRestart means the service manager rejected the reload or restart.
	ErrRestart = errors.New("service restart failed")

	// ErrUnhealthy means the service was not active after the restart.
	ErrUnhealthy = errors.New("service is not active")

	// ErrNotCheckout means the install directory is missing or not a git working copy.
	ErrNotCheckout = errors.New("install directory is not a git checkout")
)

var stageSentinels = map[StageName]error{
	StageSync:    ErrSync,
	StageInstall: ErrInstall,
	StageRestart: ErrRestart,
	StageVerify:  ErrUnhealthy,
}

// StageError reports which stage and command failed.
type StageError struct {
	Stage StageName
	// Command is the failing command line; empty for preflight failures.
	Command string
	// Code is the exit code the run should terminate with.
	Code int
	// Err is the underlying cause.
	Err error
}

func (e *StageError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Command, e.Err)
}

// Unwrap exposes both the stage sentinel and the underlying cause. An interrupted
// stage carries no sentinel.
func (e *StageError) Unwrap() []error {
	errs := []error{e.Err}
	if interrupted(e.Err) {
		return errs
	}
	if sentinel, ok := stageSentinels[e.Stage]; ok {
		errs = append(errs, sentinel)
	}
	return errs
}

func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ExitCode returns the process exit status for the outcome of a run.
//
// A failed health check always exits 1. Any other stage failure exits with
// the failing command's own status, as a script aborting on error would.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, ErrUnhealthy) {
		return 1
	}
	var stageErr *StageError
	if errors.As(err, &stageErr) && stageErr.Code > 0 {
		return stageErr.Code
	}
	return 1
}
