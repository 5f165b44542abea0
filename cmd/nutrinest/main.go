package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/nutrinest/internal/app"
	"github.com/tildaslashalef/nutrinest/internal/commands"
)

// Version information - populated at build time
var (
	Version    = "dev"
	BuildTime  = "unknown"
	CommitHash = "unknown"
	Author     = "unknown"
	Email      = "unknown"
)

func main() {
	cliApp := &cli.App{
		Name:  "nutrinest",
		Usage: "Offline-first food diary with server sync",
		Description: "Nutrinest keeps your food diary in a local database and works without a connection.\n\n" +
			"Entries are pushed to the Nutrinest server in the background once a server is linked,\n" +
			"and summaries and catalog searches are served from the local cache while they refresh.",
		Version: fmt.Sprintf("%s (%s)", Version, CommitHash),
		Compiled: func() time.Time {
			t, err := time.Parse(time.RFC3339, BuildTime)
			if err != nil {
				return time.Now()
			}
			return t
		}(),
		Authors: []*cli.Author{
			{
				Name:  Author,
				Email: Email,
			},
		},
		Before: func(c *cli.Context) error {
			application, err := app.New()
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}

			c.App.Metadata = map[string]interface{}{
				"app": application,
			}

			return nil
		},
		After: func(c *cli.Context) error {
			if app, ok := c.App.Metadata["app"].(*app.App); ok {
				return app.Shutdown()
			}
			return nil
		},
		Commands: []*cli.Command{
			commands.InitCommand(),
			commands.FoodCommand(),
			commands.WeightCommand(),
			commands.SummaryCommand(),
			commands.DashboardCommand(),
			commands.CatalogCommand(),
			commands.SyncCommand(),
			commands.MigrateCommand(),
		},
		Action: func(c *cli.Context) error {
			return commands.SummaryCommand().Action(c)
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
