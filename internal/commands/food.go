package commands

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/tildaslashalef/nutrinest/internal/app"
	"github.com/tildaslashalef/nutrinest/internal/nutrition"
	"github.com/tildaslashalef/nutrinest/internal/utils"
	"github.com/urfave/cli/v2"
)

func dateFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "date",
		Aliases: []string{"d"},
		Usage:   "Diary date as YYYY-MM-DD (default: today)",
	}
}

// resolveDate returns the --date flag or today's date
func resolveDate(c *cli.Context) (string, error) {
	date := c.String("date")
	if date == "" {
		return time.Now().Format(nutrition.DateLayout), nil
	}
	if _, err := time.Parse(nutrition.DateLayout, date); err != nil {
		return "", fmt.Errorf("invalid date %q, expected YYYY-MM-DD", date)
	}
	return date, nil
}

func foodFlags() []cli.Flag {
	return []cli.Flag{
		dateFlag(),
		&cli.StringFlag{Name: "meal", Aliases: []string{"m"}, Usage: "breakfast, lunch, dinner or snack", Value: string(nutrition.MealSnack)},
		&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "What you ate", Required: true},
		&cli.Float64Flag{Name: "grams", Aliases: []string{"g"}, Usage: "Quantity in grams", Required: true},
		&cli.Float64Flag{Name: "calories", Aliases: []string{"k"}, Usage: "Calories (kcal)", Required: true},
		&cli.Float64Flag{Name: "protein", Usage: "Protein in grams"},
		&cli.Float64Flag{Name: "carbs", Usage: "Carbohydrates in grams"},
		&cli.Float64Flag{Name: "fat", Usage: "Fat in grams"},
	}
}

func foodInput(c *cli.Context) (nutrition.FoodInput, error) {
	date, err := resolveDate(c)
	if err != nil {
		return nutrition.FoodInput{}, err
	}
	meal, err := nutrition.ParseMeal(c.String("meal"))
	if err != nil {
		return nutrition.FoodInput{}, err
	}
	return nutrition.FoodInput{
		Date:      date,
		Meal:      meal,
		Name:      c.String("name"),
		QuantityG: c.Float64("grams"),
		Calories:  c.Float64("calories"),
		ProteinG:  c.Float64("protein"),
		CarbsG:    c.Float64("carbs"),
		FatG:      c.Float64("fat"),
	}, nil
}

// FoodCommand returns the CLI command for the food diary
func FoodCommand() *cli.Command {
	return &cli.Command{
		Name:  "food",
		Usage: "Log and review food diary entries",
		Subcommands: []*cli.Command{
			{
				Name:   "add",
				Usage:  "Log a food entry",
				Flags:  foodFlags(),
				Action: addFoodAction,
			},
			{
				Name:   "list",
				Usage:  "List food entries for a day",
				Flags:  []cli.Flag{dateFlag()},
				Action: listFoodAction,
			},
			{
				Name:      "update",
				Usage:     "Replace the fields of a food entry",
				ArgsUsage: "<entry-id>",
				Flags:     foodFlags(),
				Action:    updateFoodAction,
			},
			{
				Name:      "delete",
				Usage:     "Delete a food entry",
				ArgsUsage: "<entry-id>",
				Action:    deleteFoodAction,
			},
		},
	}
}

func addFoodAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	in, err := foodInput(c)
	if err != nil {
		return err
	}

	entry, err := application.Nutrition.LogFood(c.Context, in)
	if err != nil {
		utils.PrintError(fmt.Sprintf("Failed to log food: %s", err))
		return err
	}

	utils.PrintSuccess(fmt.Sprintf("Logged %s (%.0f kcal) for %s", color.CyanString(entry.Name), entry.Calories, entry.Meal))
	utils.PrintKeyValue("ID", entry.ID)
	return nil
}

func listFoodAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	date, err := resolveDate(c)
	if err != nil {
		return err
	}

	entries, err := application.Nutrition.ListFood(c.Context, date)
	if err != nil {
		return fmt.Errorf("listing food entries: %w", err)
	}

	if len(entries) == 0 {
		utils.PrintInfo("No food logged for " + date)
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		synced := color.YellowString("pending")
		if !e.PendingSync {
			synced = color.GreenString("synced")
		}
		rows = append(rows, []string{
			e.ID,
			string(e.Meal),
			utils.Truncate(e.Name, 30),
			fmt.Sprintf("%.0f", e.QuantityG),
			fmt.Sprintf("%.0f", e.Calories),
			fmt.Sprintf("%.1f/%.1f/%.1f", e.ProteinG, e.CarbsG, e.FatG),
			synced,
		})
	}
	utils.PrintTable("Food diary "+date, []string{"ID", "Meal", "Name", "Grams", "Kcal", "P/C/F", "Sync"}, rows)

	calories, protein, carbs, fat := nutrition.Totals(entries)
	utils.PrintKeyValue("Total", fmt.Sprintf("%.0f kcal, P %.1f g, C %.1f g, F %.1f g", calories, protein, carbs, fat))
	return nil
}

func updateFoodAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("entry id is required")
	}

	in, err := foodInput(c)
	if err != nil {
		return err
	}

	entry, err := application.Nutrition.UpdateFood(c.Context, id, in)
	if err != nil {
		utils.PrintError(fmt.Sprintf("Failed to update %s: %s", id, err))
		return err
	}

	utils.PrintSuccess(fmt.Sprintf("Updated %s (revision %d)", entry.ID, entry.Revision))
	return nil
}

func deleteFoodAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("entry id is required")
	}

	if err := application.Nutrition.DeleteFood(c.Context, id); err != nil {
		utils.PrintError(fmt.Sprintf("Failed to delete %s: %s", id, err))
		return err
	}

	utils.PrintSuccess("Deleted " + id)
	return nil
}
