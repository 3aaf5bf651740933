package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

func newHistoryCommand(app *App) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded deployments, newest first",
		Long: `List deployments recorded in the history file.

Recording is enabled by setting history.path in the config file
or REDEPLOY_HISTORY_PATH in the environment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.History == nil {
				app.Printer.Error(errors.New("deployment history is disabled; set history.path to enable it"))
				return NewExitError(1)
			}

			records, err := app.History.Last(limit)
			if err != nil {
				app.Printer.Error(err)
				return NewExitError(1)
			}
			app.Printer.History(app.History.Path(), records)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of deployments to show (0 for all)")

	return cmd
}
