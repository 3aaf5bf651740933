// Package deploy runs a single-host deployment: synchronize the working copy,
// install dependencies, restart the service and verify it is active.
//
// The four stages always run in that order and the first failing command
// ends the run. Nothing is retried and nothing is rolled back; when the
// service does not come up, the tail of its journal is returned for the
// operator to read.
//
// Key types:
//   - [Plan] is the ordered list of [Stage] values built from configuration
//   - [Executor] runs a plan through a [Commander]
//   - [Report] describes what happened during a run
//   - [StageError] identifies the stage and command that failed
package deploy

import (
	"fmt"
	"strings"
	"time"

	"redeploy/internal/config"
)

// StageName identifies one of the four deployment stages.
type StageName string

// Deployment stages in execution order.
const (
	StageSync    StageName = "sync"
	StageInstall StageName = "install"
	StageRestart StageName = "restart"
	StageVerify  StageName = "verify"
)

// StageNames lists the stages in execution order.
var StageNames = []StageName{StageSync, StageInstall, StageRestart, StageVerify}

// Command is a single external command invocation.
type Command struct {
	// Name is the binary to run.
	Name string
	// Args are passed to the binary unchanged.
	Args []string
	// Dir is the working directory; empty means the current directory.
	Dir string
}

// String renders the command the way it would be typed in a shell.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Stage is one step of the deployment.
type Stage struct {
	Name StageName

	// Delay is waited before the first command runs.
	Delay time.Duration

	// Commands run in order; the first non-zero exit fails the stage.
	Commands []Command

	// Diagnose, when set, is captured after a command fails and its last
	// DiagnoseLines lines are attached to the report.
	Diagnose      *Command
	DiagnoseLines int
}

// Plan is the complete, ordered deployment for one service.
type Plan struct {
	// WorkDir is the working copy that must exist before the sync stage runs.
	WorkDir string

	// Service is the managed unit being deployed.
	Service string

	// Stages are executed in order.
	Stages []Stage

	// Revision is captured after a successful sync to report the deployed commit.
	Revision Command
}

// NewPlan builds the deployment plan described by cfg.
func NewPlan(cfg *config.Config) *Plan {
	d := cfg.Deploy
	bin := cfg.Binaries

	return &Plan{
		WorkDir: d.InstallDir,
		Service: d.Service,
		Stages: []Stage{
			{
				Name: StageSync,
				Commands: []Command{
					{Name: bin.Git, Args: []string{"fetch", d.Remote, d.Branch}, Dir: d.InstallDir},
					{Name: bin.Git, Args: []string{"reset", "--hard", d.Remote + "/" + d.Branch}, Dir: d.InstallDir},
				},
			},
			{
				Name: StageInstall,
				Commands: []Command{
					{Name: d.PipPath(), Args: []string{"install", "--upgrade", "pip"}, Dir: d.InstallDir},
					{Name: d.PipPath(), Args: []string{"install", "-r", d.ManifestPath()}, Dir: d.InstallDir},
				},
			},
			{
				Name: StageRestart,
				Commands: []Command{
					{Name: bin.Systemctl, Args: []string{"daemon-reload"}},
					{Name: bin.Systemctl, Args: []string{"restart", d.Service}},
				},
			},
			{
				Name:  StageVerify,
				Delay: d.HealthDelay,
				Commands: []Command{
					{Name: bin.Systemctl, Args: []string{"is-active", "--quiet", d.Service}},
				},
				Diagnose: &Command{
					Name: bin.Journalctl,
					Args: []string{"-u", d.Service, "-n", fmt.Sprint(d.LogLines), "--no-pager"},
				},
				DiagnoseLines: d.LogLines,
			},
		},
		Revision: Command{Name: bin.Git, Args: []string{"rev-parse", "HEAD"}, Dir: d.InstallDir},
	}
}

// Stage returns the stage with the given name.
func (p *Plan) Stage(name StageName) (Stage, bool) {
	for _, s := range p.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return Stage{}, false
}

// ParseStageName validates a stage name given on the command line.
func ParseStageName(s string) (StageName, error) {
	for _, name := range StageNames {
		if string(name) == s {
			return name, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", s)
}
