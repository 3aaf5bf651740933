package deploy

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"redeploy/internal/execx"
)

// Commander is the interface for running external commands.
//
// Run streams the command's output and waits for it; Capture returns stdout
// instead of streaming it. The [execx.Runner] type implements this interface.
type Commander interface {
	Run(ctx context.Context, dir, name string, args ...string) execx.Result
	Capture(ctx context.Context, dir, name string, args ...string) (string, execx.Result)
}

// ProgressCallback is invoked before each stage begins execution.
//
// The callback receives stageIndex (1-based), totalStages count, and the stage name.
type ProgressCallback func(stageIndex, totalStages int, stage StageName)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// StageResult records the outcome of one executed stage.
type StageResult struct {
	Name     StageName
	Duration time.Duration
	Err      error
}

// Report describes a deployment run. It is returned even when the run fails.
type Report struct {
	// ID uniquely identifies the run.
	ID string

	Service string

	// Revision is the commit the working copy was reset to, if known.
	Revision string

	StartedAt time.Time
	Duration  time.Duration

	// Stages holds one entry per stage that started, in order.
	Stages []StageResult

	// Logs holds the service journal tail when the health check failed.
	Logs []string

	// Err is the error that ended the run, nil on success.
	Err error
}

// FailedStage returns the name of the stage that failed, or "" on success.
func (r *Report) FailedStage() StageName {
	for _, s := range r.Stages {
		if s.Err != nil {
			return s.Name
		}
	}
	return ""
}

// Executor runs a [Plan] stage by stage, stopping at the first failure.
//
// Executor uses dependency injection for testability: the [Commander] runs the
// external tools and the sleep function implements the post-restart delay.
// Use [NewExecutor] to create an instance and [Executor.Execute] to deploy.
type Executor struct {
	plan             *Plan
	commander        Commander
	log              logrus.FieldLogger
	progressCallback ProgressCallback
	sleep            SleepFunc
	now              func() time.Time
}

// NewExecutor creates a new Executor for plan.
//
// A nil log discards diagnostics. Progress callback is not set by default;
// use [Executor.SetProgressCallback] to enable progress reporting.
func NewExecutor(plan *Plan, commander Commander, log logrus.FieldLogger) *Executor {
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}
	return &Executor{
		plan:      plan,
		commander: commander,
		log:       log,
		sleep:     sleepContext,
		now:       time.Now,
	}
}

// SetProgressCallback configures an optional progress callback.
func (e *Executor) SetProgressCallback(cb ProgressCallback) {
	e.progressCallback = cb
}

// SetSleep replaces the function used for stage delays.
func (e *Executor) SetSleep(fn SleepFunc) {
	if fn == nil {
		fn = sleepContext
	}
	e.sleep = fn
}

// Plan returns the stages the executor would run, without running them.
func (e *Executor) Plan() *Plan {
	return e.plan
}

// Execute runs all stages in order.
//
// Execute first checks that the working copy exists, then runs sync, install,
// restart and verify. It stops at the first failing command and returns a
// [*StageError] wrapping that stage's sentinel error. When the verify stage
// fails, the journal tail is attached to the report. The report is never nil.
func (e *Executor) Execute(ctx context.Context) (*Report, error) {
	return e.run(ctx, e.plan.Stages)
}

// RunStage runs a single named stage with the same semantics as [Executor.Execute].
func (e *Executor) RunStage(ctx context.Context, name StageName) (*Report, error) {
	stage, ok := e.plan.Stage(name)
	if !ok {
		return nil, fmt.Errorf("unknown stage %q", name)
	}
	return e.run(ctx, []Stage{stage})
}

func (e *Executor) run(ctx context.Context, stages []Stage) (*Report, error) {
	report := &Report{
		ID:        uuid.NewString(),
		Service:   e.plan.Service,
		StartedAt: e.now(),
	}
	log := e.log.WithFields(logrus.Fields{"deployment": report.ID, "service": e.plan.Service})

	finish := func(err error) (*Report, error) {
		report.Duration = e.now().Sub(report.StartedAt)
		report.Err = err
		if err != nil {
			log.WithError(err).Error("deployment failed")
		} else {
			log.WithField("revision", report.Revision).Info("deployment finished")
		}
		return report, err
	}

	if needsWorkDir(stages) {
		if err := CheckWorkingCopy(e.plan.WorkDir); err != nil {
			return finish(&StageError{Stage: stages[0].Name, Code: 1, Err: err})
		}
	}

	total := len(stages)
	for i, stage := range stages {
		if e.progressCallback != nil {
			e.progressCallback(i+1, total, stage.Name)
		}
		log.WithField("stage", stage.Name).Debug("stage started")

		start := e.now()
		err := e.runStage(ctx, stage, report)
		report.Stages = append(report.Stages, StageResult{
			Name:     stage.Name,
			Duration: e.now().Sub(start),
			Err:      err,
		})
		if err != nil {
			return finish(err)
		}

		if stage.Name == StageSync {
			report.Revision = e.revision(ctx, log)
		}
	}

	return finish(nil)
}

func (e *Executor) runStage(ctx context.Context, stage Stage, report *Report) error {
	if stage.Delay > 0 {
		if err := e.sleep(ctx, stage.Delay); err != nil {
			return &StageError{Stage: stage.Name, Code: execx.CodeInterrupted, Err: err}
		}
	}

	for _, c := range stage.Commands {
		res := e.commander.Run(ctx, c.Dir, c.Name, c.Args...)
		if res.OK() {
			continue
		}

		cause := res.Err
		if cause == nil {
			cause = fmt.Errorf("exit status %d", res.Code)
		}
		if stage.Diagnose != nil {
			report.Logs = e.diagnose(ctx, *stage.Diagnose, stage.DiagnoseLines)
		}
		return &StageError{Stage: stage.Name, Command: c.String(), Code: res.Code, Err: cause}
	}
	return nil
}

// diagnose captures the diagnostic command and keeps its last n lines.
// A failing diagnostic command is logged and yields whatever it printed.
func (e *Executor) diagnose(ctx context.Context, c Command, n int) []string {
	out, res := e.commander.Capture(ctx, c.Dir, c.Name, c.Args...)
	if !res.OK() {
		e.log.WithError(res.Err).WithField("command", c.String()).Warn("could not read service logs")
	}
	return TailLines(out, n)
}

func (e *Executor) revision(ctx context.Context, log logrus.FieldLogger) string {
	c := e.plan.Revision
	if c.Name == "" {
		return ""
	}
	out, res := e.commander.Capture(ctx, c.Dir, c.Name, c.Args...)
	if !res.OK() {
		log.WithError(res.Err).Warn("could not determine deployed revision")
		return ""
	}
	return strings.TrimSpace(out)
}

// CheckWorkingCopy verifies that dir exists and is a git working copy.
func CheckWorkingCopy(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotCheckout, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrNotCheckout, dir)
	}
	// .git is a directory in a clone and a file in a linked worktree
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		return fmt.Errorf("%w: %s", ErrNotCheckout, dir)
	}
	return nil
}

// TailLines returns the last n lines of s, ignoring a trailing newline.
func TailLines(s string, n int) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" || n <= 0 {
		return nil
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

func needsWorkDir(stages []Stage) bool {
	for _, s := range stages {
		if s.Name == StageSync || s.Name == StageInstall {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
