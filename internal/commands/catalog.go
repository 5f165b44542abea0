package commands

import (
	"fmt"
	"strings"

	"github.com/tildaslashalef/nutrinest/internal/app"
	"github.com/tildaslashalef/nutrinest/internal/reconcile"
	"github.com/tildaslashalef/nutrinest/internal/utils"
	"github.com/urfave/cli/v2"
)

// CatalogCommand returns the CLI command for the food catalog
func CatalogCommand() *cli.Command {
	return &cli.Command{
		Name:  "catalog",
		Usage: "Search and maintain the cached food catalog",
		Subcommands: []*cli.Command{
			{
				Name:      "search",
				Usage:     "Search foods by name or brand",
				ArgsUsage: "<query>",
				Action:    searchCatalogAction,
			},
			{
				Name:  "purge",
				Usage: "Remove catalog items that have not been refreshed recently",
				Action: func(c *cli.Context) error {
					application, err := app.FromContext(c)
					if err != nil {
						return err
					}

					n, err := application.Nutrition.PurgeStaleCatalog(c.Context)
					if err != nil {
						utils.PrintError(fmt.Sprintf("Failed to purge catalog: %s", err))
						return err
					}

					utils.PrintSuccess(fmt.Sprintf("Purged %d catalog item(s)", n))
					return nil
				},
			},
		},
	}
}

func searchCatalogAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("search query is required")
	}

	r, ok := reconcile.Settled(c.Context, application.Nutrition.SearchCatalog(query))
	if !ok {
		utils.PrintWarning("Catalog unavailable")
		return nil
	}
	if r.IsError() {
		utils.PrintWarning(r.Message())
	}

	items, _ := r.Data()
	if len(items) == 0 {
		utils.PrintInfo(fmt.Sprintf("No foods match %q", query))
		return nil
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			utils.Truncate(item.Name, 32),
			utils.Truncate(item.Brand, 20),
			fmt.Sprintf("%.0f", item.CaloriesPer100g),
			fmt.Sprintf("%.1f/%.1f/%.1f", item.ProteinPer100g, item.CarbsPer100g, item.FatPer100g),
		})
	}
	utils.PrintTable(fmt.Sprintf("Catalog: %s", query), []string{"Name", "Brand", "Kcal/100g", "P/C/F"}, rows)
	return nil
}
