package commands

import (
	"fmt"

	"github.com/tildaslashalef/nutrinest/internal/app"
	"github.com/tildaslashalef/nutrinest/internal/utils"
	"github.com/urfave/cli/v2"
)

// WeightCommand returns the CLI command for the weight log
func WeightCommand() *cli.Command {
	return &cli.Command{
		Name:  "weight",
		Usage: "Log and review body weight",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Log a weight measurement",
				Flags: []cli.Flag{
					dateFlag(),
					&cli.Float64Flag{Name: "kg", Usage: "Weight in kilograms", Required: true},
					&cli.StringFlag{Name: "note", Usage: "Optional note"},
				},
				Action: func(c *cli.Context) error {
					application, err := app.FromContext(c)
					if err != nil {
						return err
					}

					date, err := resolveDate(c)
					if err != nil {
						return err
					}

					entry, err := application.Nutrition.LogWeight(c.Context, date, c.Float64("kg"), c.String("note"))
					if err != nil {
						utils.PrintError(fmt.Sprintf("Failed to log weight: %s", err))
						return err
					}

					utils.PrintSuccess(fmt.Sprintf("Logged %.1f kg for %s", entry.WeightKg, entry.Date))
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "Show recent weight measurements",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Number of entries to show", Value: 14},
				},
				Action: func(c *cli.Context) error {
					application, err := app.FromContext(c)
					if err != nil {
						return err
					}

					entries, err := application.Nutrition.ListWeight(c.Context, c.Int("limit"))
					if err != nil {
						return fmt.Errorf("listing weight entries: %w", err)
					}
					if len(entries) == 0 {
						utils.PrintInfo("No weight logged yet")
						return nil
					}

					rows := make([][]string, 0, len(entries))
					for _, e := range entries {
						rows = append(rows, []string{e.Date, fmt.Sprintf("%.1f", e.WeightKg), utils.Truncate(e.Note, 40)})
					}
					utils.PrintTable("Weight", []string{"Date", "Kg", "Note"}, rows)
					return nil
				},
			},
		},
	}
}
