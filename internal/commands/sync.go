package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/tildaslashalef/nutrinest/internal/app"
	"github.com/tildaslashalef/nutrinest/internal/config"
	"github.com/tildaslashalef/nutrinest/internal/loggy"
	"github.com/tildaslashalef/nutrinest/internal/metrics"
	"github.com/tildaslashalef/nutrinest/internal/remote"
	"github.com/tildaslashalef/nutrinest/internal/scheduler"
	"github.com/tildaslashalef/nutrinest/internal/utils"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var errSyncDisabled = errors.New("remote sync is not configured, run 'nutrinest sync link' first")

// SyncCommand returns the CLI command for syncing local data to the server
func SyncCommand() *cli.Command {
	return &cli.Command{
		Name:        "sync",
		Usage:       "Sync local data with the Nutrinest server",
		Description: "Push pending diary entries to the server and manage the server link",
		Subcommands: []*cli.Command{
			{
				Name:  "link",
				Usage: "Link this device to a server account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "url", Usage: "Server base URL", Required: true},
					&cli.StringFlag{Name: "token", Usage: "Personal access token from the web interface", Required: true},
					&cli.StringFlag{Name: "name", Usage: "A name for this device (e.g., 'Kitchen Tablet')"},
				},
				Action: linkAction,
			},
			{
				Name:   "unlink",
				Usage:  "Remove the server link",
				Action: unlinkAction,
			},
			{
				Name:   "run",
				Usage:  "Push pending records now",
				Action: runSyncAction,
			},
			{
				Name:  "daemon",
				Usage: "Sync periodically until interrupted",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "metrics-addr",
						Usage: "Listen address for /metrics and /health (overrides NUTRINEST_METRICS_ADDR)",
					},
				},
				Action: daemonAction,
			},
			{
				Name:   "status",
				Usage:  "Show the sync link and the last run",
				Action: syncStatusAction,
			},
			{
				Name:   "pending",
				Usage:  "List records waiting to be pushed",
				Action: pendingAction,
			},
		},
	}
}

func linkAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	serverURL := strings.TrimRight(c.String("url"), "/")
	name := c.String("name")
	if name == "" {
		name = application.Config.Server.DeviceName
	}
	if name == "" {
		name = utils.GenerateDeviceName()
	}

	candidate := application.Config.Server
	candidate.URL = serverURL
	candidate.Token = c.String("token")
	candidate.DeviceName = name

	utils.PrintInfo("Checking " + color.YellowString("%s", serverURL))
	if err := remote.NewClient(&candidate, application.Logger).Ping(c.Context); err != nil {
		utils.PrintError(fmt.Sprintf("Server check failed: %s", err))
		return err
	}

	ctx := c.Context
	settings := application.Settings
	for _, save := range []func() error{
		func() error { return settings.SetServerURL(ctx, serverURL) },
		func() error { return settings.SetToken(ctx, candidate.Token) },
		func() error { return settings.SetDeviceName(ctx, name) },
		func() error { return settings.SetSyncEnabled(ctx, true) },
	} {
		if err := save(); err != nil {
			utils.PrintError(fmt.Sprintf("Failed to save settings: %s", err))
			return err
		}
	}

	utils.PrintSuccess("Linked as " + color.CyanString(name))
	return nil
}

func unlinkAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	if err := application.Settings.SetToken(c.Context, ""); err != nil {
		return fmt.Errorf("clearing token: %w", err)
	}
	if err := application.Settings.SetSyncEnabled(c.Context, false); err != nil {
		return fmt.Errorf("disabling sync: %w", err)
	}

	utils.PrintSuccess("Unlinked from server. Local data is kept.")
	return nil
}

func runSyncAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}
	if application.Scheduler == nil {
		return errSyncDisabled
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = loggy.WithRequestID(ctx, loggy.NewRequestID())

	utils.PrintInfo("Syncing...")
	run, err := application.Scheduler.Trigger(ctx)
	if run != nil {
		printRun(run)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			utils.PrintWarning("Sync interrupted, pending records are kept")
			return nil
		}
		utils.PrintError(fmt.Sprintf("Sync failed: %s", err))
		return err
	}
	if run.State == scheduler.StateFailure {
		utils.PrintError("Sync failed after retries, pending records are kept")
		return fmt.Errorf("sync failed: %s", run.LastError)
	}

	utils.PrintSuccess(fmt.Sprintf("Pushed %d record(s)", run.Pushed))
	return nil
}

func daemonAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}
	if application.Scheduler == nil {
		return errSyncDisabled
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application.Cache.StartJanitor(ctx, application.Config.Cache.JanitorInterval)

	if err := application.Scheduler.Start(ctx); err != nil {
		return err
	}
	defer application.Scheduler.Stop()

	utils.PrintSuccess(fmt.Sprintf("Syncing every %s, press Ctrl+C to stop", application.Config.Sync.Interval))

	g, gctx := errgroup.WithContext(ctx)

	addr := c.String("metrics-addr")
	if addr == "" {
		addr = application.Config.Metrics.Addr
	}
	if addr != "" {
		server := metrics.NewServer(addr, func() any { return application.Scheduler.Status() })
		utils.PrintInfo("Metrics listening on " + color.YellowString("%s", addr))

		g.Go(server.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Stop(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		utils.PrintError(fmt.Sprintf("Daemon stopped: %s", err))
		return err
	}

	utils.PrintInfo("Daemon stopped")
	return nil
}

func syncStatusAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	cfg := application.Config.Server
	utils.PrintHeading("Sync status")
	utils.PrintKeyValue("Server", valueOr(cfg.URL, "not linked"))
	utils.PrintKeyValue("Enabled", fmt.Sprintf("%t", cfg.Enabled))
	utils.PrintKeyValue("Device", valueOr(cfg.DeviceName, "unnamed"))

	records, err := application.Queue.Pending(c.Context)
	if err != nil {
		return fmt.Errorf("reading pending records: %w", err)
	}
	utils.PrintKeyValue("Pending", fmt.Sprintf("%d record(s)", len(records)))

	last, err := application.Settings.GetLastRun(c.Context)
	if err != nil {
		return fmt.Errorf("reading last run: %w", err)
	}
	printLastRun(last)
	return nil
}

func pendingAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	records, err := application.Queue.Pending(c.Context)
	if err != nil {
		return fmt.Errorf("reading pending records: %w", err)
	}
	if len(records) == 0 {
		utils.PrintSuccess("Nothing to sync")
		return nil
	}

	now := time.Now()
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{string(r.Kind), r.ID, fmt.Sprintf("%d", r.Revision), utils.FormatAgo(r.CreatedAt, now)})
	}
	utils.PrintTable("Pending records", []string{"Kind", "ID", "Revision", "Created"}, rows)
	return nil
}

func printRun(run *scheduler.SyncRun) {
	utils.PrintKeyValue("Run", run.ID)
	utils.PrintKeyValue("State", string(run.State))
	utils.PrintKeyValue("Attempts", fmt.Sprintf("%d", run.Attempt+1))
	if run.Deferrals > 0 {
		utils.PrintKeyValue("Deferred", fmt.Sprintf("%d time(s)", run.Deferrals))
	}
	if run.LastError != "" {
		utils.PrintKeyValue("Last error", run.LastError)
	}
	utils.PrintKeyValue("Duration", run.Duration(time.Now()).Round(time.Millisecond).String())
}

func printLastRun(last config.LastRun) {
	if last.At.IsZero() {
		utils.PrintKeyValue("Last run", "never")
		return
	}
	utils.PrintKeyValue("Last run", fmt.Sprintf("%s (%s)", utils.FormatAgo(last.At, time.Now()), last.Outcome))
	if last.Error != "" {
		utils.PrintKeyValue("Last error", last.Error)
	}
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
