package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/tildaslashalef/nutrinest/internal/app"
	"github.com/tildaslashalef/nutrinest/internal/nutrition"
	"github.com/tildaslashalef/nutrinest/internal/reconcile"
	"github.com/tildaslashalef/nutrinest/internal/resource"
	"github.com/tildaslashalef/nutrinest/internal/utils"
	"github.com/urfave/cli/v2"
)

// SummaryCommand returns the CLI command for the daily summary
func SummaryCommand() *cli.Command {
	return &cli.Command{
		Name:  "summary",
		Usage: "Show the calorie summary for a day",
		Description: "Shows the cached summary straight away and refreshes it from the " +
			"server. When the server cannot be reached the cached summary is shown " +
			"together with the reason.",
		Flags: []cli.Flag{
			dateFlag(),
			&cli.BoolFlag{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "Keep printing updates until interrupted",
			},
		},
		Action: summaryAction,
	}
}

func summaryAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	date, err := resolveDate(c)
	if err != nil {
		return err
	}

	stream := application.Nutrition.DailySummary(date)

	if !c.Bool("watch") {
		r, ok := reconcile.Settled(c.Context, stream)
		if !ok {
			utils.PrintWarning("No summary available for " + date)
			return nil
		}
		printSummary(date, r)
		return nil
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	for r := range stream.Subscribe(ctx) {
		printSummary(date, r)
	}
	return nil
}

func printSummary(date string, r resource.Resource[*nutrition.DailySummary]) {
	switch {
	case r.IsLoading():
		utils.PrintInfo("Refreshing summary for " + date + "...")
	case r.IsError():
		utils.PrintWarning(r.Message())
	}

	s, ok := r.Data()
	if !ok {
		if !r.IsLoading() {
			utils.PrintInfo("No summary stored for " + date)
		}
		return
	}

	utils.PrintHeading("Summary " + s.Date)
	utils.PrintKeyValue("Goal", fmt.Sprintf("%.0f kcal", s.CalorieGoal))
	utils.PrintKeyValue("Consumed", fmt.Sprintf("%.0f kcal", s.CaloriesConsumed))
	utils.PrintKeyValue("Remaining", color.CyanString("%.0f kcal", s.Remaining()))
	utils.PrintKeyValue("Macros", fmt.Sprintf("P %.1f g, C %.1f g, F %.1f g", s.ProteinG, s.CarbsG, s.FatG))
	utils.PrintKeyValue("Synced", utils.FormatAgo(s.LastSyncedAt, time.Now()))
}
