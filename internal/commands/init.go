package commands

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/tildaslashalef/nutrinest/internal/app"
	"github.com/tildaslashalef/nutrinest/internal/config"
	"github.com/tildaslashalef/nutrinest/internal/utils"
	"github.com/urfave/cli/v2"
)

// InitCommand returns the CLI command for initializing Nutrinest
func InitCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Initialize or update the Nutrinest environment",
		Description: "Sets up the configuration directory with a sample .env file and " +
			"brings the local database schema up to date. Run it once after installing " +
			"and again after upgrading.",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Replace an existing .env file, keeping a dated backup",
			},
		},
		Action: func(c *cli.Context) error {
			application, err := app.FromContext(c)
			if err != nil {
				return err
			}

			utils.PrintHeading("Initializing Nutrinest")

			configDir := application.Config.ConfigDir()
			configFilePath := filepath.Join(configDir, ".env")
			utils.PrintInfo("Configuration directory: " + color.YellowString("%s", configDir))

			if err := config.SetupConfigDirectory(configDir, c.Bool("force")); err != nil {
				utils.PrintWarning(fmt.Sprintf("Failed to set up configuration files: %s", err))
			}

			// opening the app already applied pending migrations
			utils.PrintSuccess("Nutrinest initialized successfully!")
			utils.PrintInfo("Configuration file: " + color.YellowString("%s", configFilePath))
			utils.PrintInfo("Database location: " + color.YellowString("%s", application.Config.Database.Path))
			utils.PrintInfo("Log output: " + color.YellowString("%s", application.Config.Logging.Output))
			fmt.Println("")
			utils.PrintInfo("Link a server with " + color.CyanString("nutrinest sync link") + " to back up your diary.")

			return nil
		},
	}
}
