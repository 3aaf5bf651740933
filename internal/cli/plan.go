package cli

import (
	"github.com/spf13/cobra"
)

func newPlanCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show the commands a deployment would run",
		Long: `Print every command of every stage, in order, without running anything.
Useful to check configuration before the first deployment on a host.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			app.Printer.Plan(app.Executor.Plan())
		},
	}
}
