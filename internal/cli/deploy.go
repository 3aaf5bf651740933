package cli

import (
	"github.com/spf13/cobra"

	"redeploy/internal/deploy"
	"redeploy/internal/history"
)

func newRunCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full deployment (default command)",
		Long: `Run all four deployment stages in order: sync, install, restart, verify.
Same as running redeploy without a subcommand.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeployment(cmd, app, "")
		},
	}
}

func newStageCommand(app *App, stage deploy.StageName) *cobra.Command {
	short := map[deploy.StageName]string{
		deploy.StageSync:    "Fetch the branch and hard-reset the working copy",
		deploy.StageInstall: "Upgrade pip and install the dependency manifest",
		deploy.StageRestart: "Reload unit files and restart the service",
		deploy.StageVerify:  "Check that the service is active, printing its journal if not",
	}[stage]

	return &cobra.Command{
		Use:   string(stage),
		Short: short,
		Long:  short + ".\n\nRuns only this stage of the deployment.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeployment(cmd, app, stage)
		},
	}
}

// runDeployment runs every stage, or only stage when it is non-empty, prints
// the result and records it. Failures are returned as [ExitError].
func runDeployment(cmd *cobra.Command, app *App, stage deploy.StageName) error {
	ctx := cmd.Context()

	stages := deploy.StageNames
	if stage != "" {
		stages = []deploy.StageName{stage}
	}
	app.Printer.Banner(app.Executor.Plan(), stages)
	app.Executor.SetProgressCallback(app.Printer.StageStart)

	var (
		report *deploy.Report
		err    error
	)
	if stage == "" {
		report, err = app.Executor.Execute(ctx)
	} else {
		report, err = app.Executor.RunStage(ctx, stage)
	}
	if report == nil {
		app.Printer.Error(err)
		return NewExitError(1)
	}

	app.Printer.Result(report)
	recordDeployment(app, report)

	if err != nil {
		return NewExitError(deploy.ExitCode(err))
	}
	return nil
}

// recordDeployment appends report to the history file when recording is enabled.
// A history write failure is logged and never changes the deployment outcome.
func recordDeployment(app *App, report *deploy.Report) {
	if app.History == nil {
		return
	}

	rec := history.Record{
		ID:         report.ID,
		Service:    report.Service,
		Revision:   report.Revision,
		StartedAt:  report.StartedAt.UTC(),
		FinishedAt: report.StartedAt.Add(report.Duration).UTC(),
		Outcome:    history.OutcomeSuccess,
	}
	if report.Err != nil {
		rec.Outcome = history.OutcomeFailed
		rec.FailedStage = string(report.FailedStage())
		rec.ExitCode = deploy.ExitCode(report.Err)
		rec.Error = report.Err.Error()
	}

	if err := app.History.Append(rec); err != nil && app.Logger != nil {
		app.Logger.WithError(err).WithField("path", app.History.Path()).Warn("could not record deployment")
	}
}
