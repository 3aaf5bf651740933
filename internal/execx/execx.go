// Package execx runs external commands and reduces their outcome to an exit code.
//
// [Runner] streams command output to the configured writers the way a shell
// script would, and can alternatively capture stdout for commands whose output
// is consumed by redeploy itself (the deployed revision, the journal tail).
package execx

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// Exit codes reported when a command did not run to completion on its own.
const (
	// CodeStartFailure is used when the command could not be started.
	CodeStartFailure = 1
	// CodeTimeout mirrors timeout(1).
	CodeTimeout = 124
	// CodeInterrupted mirrors a shell killed by SIGINT.
	CodeInterrupted = 130
)

// Result is the outcome of one command.
type Result struct {
	// Code is the process exit code, or one of the Code* constants.
	Code int
	// Err is the error returned by os/exec, nil on success.
	Err error
}

// OK reports whether the command exited with status 0.
func (r Result) OK() bool {
	return r.Code == 0 && r.Err == nil
}

// Runner executes commands on the local host.
//
// Create instances with [NewRunner]. A zero Runner streams to os.Stdout and
// os.Stderr and does not log.
type Runner struct {
	stdout io.Writer
	stderr io.Writer
	log    logrus.FieldLogger
}

// NewRunner creates a [Runner] streaming command output to stdout and stderr.
// Each command is logged at debug level before it starts.
func NewRunner(stdout, stderr io.Writer, log logrus.FieldLogger) *Runner {
	return &Runner{stdout: stdout, stderr: stderr, log: log}
}

// Run executes name with args in dir, streaming its output, and waits for it.
// An empty dir runs the command in the current directory.
func (r *Runner) Run(ctx context.Context, dir, name string, args ...string) Result {
	cmd := r.command(ctx, dir, name, args...)
	cmd.Stdout = r.out()
	cmd.Stderr = r.errOut()
	return r.result(ctx, cmd.Run())
}

// Capture executes name with args in dir and returns its stdout.
// Stderr is still streamed so failures remain visible.
func (r *Runner) Capture(ctx context.Context, dir, name string, args ...string) (string, Result) {
	cmd := r.command(ctx, dir, name, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = r.errOut()
	res := r.result(ctx, cmd.Run())
	return buf.String(), res
}

func (r *Runner) command(ctx context.Context, dir, name string, args ...string) *exec.Cmd {
	if r.log != nil {
		r.log.WithField("dir", dir).Debugf("+ %s", strings.Join(append([]string{name}, args...), " "))
	}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd
}

func (r *Runner) result(ctx context.Context, err error) Result {
	res := Result{Code: ExitCode(ctx, err), Err: err}
	if r.log != nil && err != nil {
		r.log.WithError(err).WithField("code", res.Code).Debug("command failed")
	}
	return res
}

func (r *Runner) out() io.Writer {
	if r.stdout == nil {
		return os.Stdout
	}
	return r.stdout
}

func (r *Runner) errOut() io.Writer {
	if r.stderr == nil {
		return os.Stderr
	}
	return r.stderr
}

// ExitCode maps an error from os/exec to a process exit code.
func ExitCode(ctx context.Context, err error) int {
	if err == nil {
		return 0
	}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(ctx.Err(), context.Canceled):
		return CodeInterrupted
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		return exitErr.ExitCode()
	}
	return CodeStartFailure
}
