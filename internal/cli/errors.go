package cli

import (
	"errors"
	"fmt"
)

// ExitError represents a command failure with a specific exit code.
//
// This error type allows Cobra RunE functions to signal non-zero exit codes
// without calling os.Exit() directly, enabling testable CLI behavior.
// Deployment failures return NewExitError(code) with the code from
// [deploy.ExitCode], which propagates up to [RunWithConfig] where
// [IsExitError] extracts it for [ExecuteResult].
type ExitError struct {
	// Code is the exit code to return to the shell.
	// Convention: 0 = success, 1 = health check or CLI error,
	// other values are passed through from the failing command.
	Code int
}

// Error implements the error interface, returning a string in the format
// "exit status N" to match the os/exec ExitError format.
func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// NewExitError creates an [ExitError] with the given exit code.
func NewExitError(code int) *ExitError {
	return &ExitError{Code: code}
}

// IsExitError checks if err is or wraps an [ExitError] and extracts its exit code.
//
// Returns (code, true) for an *ExitError and (0, false) for nil or any other error.
func IsExitError(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}
