// Package cli provides the command-line interface for redeploy.
//
// The root command runs a full deployment. Subcommands preview the plan, run
// a single stage, or show recorded deployments. Commands receive their
// dependencies through [App] so tests can substitute the external tools.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"redeploy/internal/config"
	"redeploy/internal/deploy"
	"redeploy/internal/execx"
	"redeploy/internal/history"
	"redeploy/internal/logging"
	"redeploy/internal/output"
)

// HistoryStore is the interface for recording and listing deployments.
// The [history.Store] type implements this interface.
type HistoryStore interface {
	Append(rec history.Record) error
	Last(n int) ([]history.Record, error)
	Path() string
}

// App holds the dependencies shared by all commands.
type App struct {
	Config   *config.Config
	Executor *deploy.Executor
	Printer  *output.Printer
	// History is nil when recording is disabled.
	History HistoryStore
	Logger  *logrus.Logger
}

// NewApp wires the production dependencies for cfg. Command output streams
// to stdout and stderr; diagnostics are logged to stderr.
func NewApp(cfg *config.Config, stdout, stderr io.Writer) *App {
	log := logging.New(stderr, cfg.Log.Level)
	runner := execx.NewRunner(stdout, stderr, log)

	app := &App{
		Config:   cfg,
		Executor: deploy.NewExecutor(deploy.NewPlan(cfg), runner, log),
		Printer:  output.NewPrinterWithWriter(stdout),
		Logger:   log,
	}
	if cfg.History.Path != "" {
		app.History = history.NewStore(cfg.History.Path, cfg.History.Keep)
	}
	return app
}

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:   "redeploy",
		Short: "Pull, install, restart and verify a service",
		Long: `Deploy the latest revision of a service on this host:
  1. sync    - fetch the branch and hard-reset the working copy
  2. install - upgrade pip and install the dependency manifest
  3. restart - reload unit files and restart the service
  4. verify  - wait, then check that the service is active

The first failing step aborts the run. If the service is not active
after the restart, its recent journal is printed and redeploy exits 1.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if cmd.Flags().Changed("log-level") && app.Logger != nil {
				logging.SetLevel(app.Logger, logLevel)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeployment(cmd, app, "")
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "diagnostic log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newRunCommand(app),
		newPlanCommand(app),
		newHistoryCommand(app),
	)
	for _, stage := range deploy.StageNames {
		rootCmd.AddCommand(newStageCommand(app, stage))
	}

	return rootCmd
}

// ExecuteResult is the outcome of [RunWithConfig].
type ExecuteResult struct {
	ExitCode int
	Err      error
}

// Execute loads configuration, runs the CLI and exits the process.
func Execute() {
	cfg, err := config.NewLoader().Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	result := RunWithConfig(cfg)
	os.Exit(result.ExitCode)
}

// RunWithConfig runs the CLI with cfg and returns the exit code instead of exiting.
// SIGINT and SIGTERM cancel the running command.
func RunWithConfig(cfg *config.Config) ExecuteResult {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := NewApp(cfg, os.Stdout, os.Stderr)
	rootCmd := NewRootCommand(app)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if code, ok := IsExitError(err); ok {
			return ExecuteResult{ExitCode: code, Err: err}
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExecuteResult{ExitCode: 1, Err: err}
	}
	return ExecuteResult{}
}
