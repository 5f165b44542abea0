package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/tildaslashalef/nutrinest/internal/app"
	"github.com/tildaslashalef/nutrinest/internal/tui"
	"github.com/urfave/cli/v2"
)

// DashboardCommand returns the CLI command for the interactive day view
func DashboardCommand() *cli.Command {
	return &cli.Command{
		Name:    "dashboard",
		Aliases: []string{"ui"},
		Usage:   "Browse your diary day by day",
		Description: "Opens an interactive view of one day's summary and food entries. " +
			"The view updates as entries are logged and as the server responds.",
		Flags: []cli.Flag{dateFlag()},
		Action: func(c *cli.Context) error {
			application, err := app.FromContext(c)
			if err != nil {
				return err
			}

			date, err := resolveDate(c)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return tui.Run(ctx, application.Nutrition, date)
		},
	}
}
