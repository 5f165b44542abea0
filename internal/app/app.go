// Package app provides the application initialization and lifecycle management
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/tildaslashalef/nutrinest/internal/cache"
	"github.com/tildaslashalef/nutrinest/internal/config"
	"github.com/tildaslashalef/nutrinest/internal/database"
	"github.com/tildaslashalef/nutrinest/internal/loggy"
	"github.com/tildaslashalef/nutrinest/internal/nutrition"
	"github.com/tildaslashalef/nutrinest/internal/outbox"
	"github.com/tildaslashalef/nutrinest/internal/remote"
	"github.com/tildaslashalef/nutrinest/internal/scheduler"
	"github.com/urfave/cli/v2"
)

// App represents the application instance with its dependencies
type App struct {
	Config    *config.Config
	DB        *database.DB
	Settings  *config.SettingsService
	Cache     *cache.Cache
	Remote    *remote.Client
	Queue     *outbox.SQLQueue
	Nutrition *nutrition.Service
	Scheduler *scheduler.Scheduler
	Logger    *loggy.Logger
}

// New initializes a new application instance with all its dependencies
func New() (*App, error) {
	cfg, err := initConfig()
	if err != nil {
		return nil, err
	}

	if err := initLogger(cfg); err != nil {
		return nil, err
	}

	loggy.Info("Application initializing",
		"version", os.Getenv("VERSION"),
		"log_level", cfg.Logging.Level,
	)

	ctx := context.Background()
	logger := loggy.GetGlobalLogger()

	db, err := database.Open(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	app := initServices(ctx, cfg, db, logger)

	loggy.Info("Application initialized successfully",
		"remote", app.Remote != nil,
		"device", cfg.Server.DeviceName,
	)
	return app, nil
}

// initConfig loads and sets up the application configuration
func initConfig() (*config.Config, error) {
	cfg, err := config.LoadFromEnv("", "")
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	config.Set(cfg)
	return cfg, nil
}

// initLogger initializes the logging system
func initLogger(cfg *config.Config) error {
	err := loggy.Init(loggy.Config{
		Level:      config.ParseLogLevel(cfg.Logging.Level),
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// initServices wires the services over an open database
func initServices(ctx context.Context, cfg *config.Config, db *database.DB, logger *loggy.Logger) *App {
	settingsService := config.NewSettingsService(db, cfg, logger)
	if err := settingsService.LoadSyncSettings(ctx); err != nil {
		loggy.Warn("Failed to load sync settings from database", "error", err)
	}

	memo := cache.New(cfg.Cache.TTL)
	repo := nutrition.NewSQLRepository(db, logger.With("component", "repository"))
	queue := outbox.NewSQLQueue(db, logger.With("component", "outbox"), nutrition.SyncTables()...)

	// a nil Fetcher keeps every read on the local store
	var (
		client  *remote.Client
		fetcher nutrition.Fetcher
	)
	if cfg.Server.Enabled && cfg.Server.URL != "" {
		client = remote.NewClient(&cfg.Server, logger.With("component", "remote"))
		fetcher = client
	} else {
		loggy.Info("Remote server not configured, serving local data only")
	}

	nutritionService := nutrition.NewService(repo, fetcher, memo, cfg.Cache, logger.With("component", "nutrition"))

	app := &App{
		Config:    cfg,
		DB:        db,
		Settings:  settingsService,
		Cache:     memo,
		Remote:    client,
		Queue:     queue,
		Nutrition: nutritionService,
		Logger:    logger,
	}

	if client != nil {
		app.Scheduler = scheduler.New(queue, client, cfg.Sync, logger.With("component", "scheduler"),
			scheduler.WithConstraints(initConstraints(cfg)...),
			scheduler.WithRecorder(settingsService),
		)
	}

	return app
}

// initConstraints builds the run preconditions enabled in cfg
func initConstraints(cfg *config.Config) []scheduler.Constraint {
	var constraints []scheduler.Constraint

	if cfg.Sync.RequireNetwork {
		network, err := scheduler.NewNetworkReachable(cfg.Server.URL, cfg.Server.Timeout)
		if err != nil {
			loggy.Warn("Network constraint disabled", "url", cfg.Server.URL, "error", err)
		} else {
			constraints = append(constraints, network)
		}
	}

	if cfg.Sync.RequireBatteryNotLow {
		constraints = append(constraints, scheduler.NewBatteryNotLow(cfg.Sync.BatteryLowPercent))
	}

	return constraints
}

// Shutdown gracefully shuts down the application
func (app *App) Shutdown() error {
	loggy.Info("Shutting down application")

	if app.Scheduler != nil {
		app.Scheduler.Stop()
	}

	if err := app.DB.Close(); err != nil {
		loggy.Error("Error closing database connection", "error", err)
	}

	if err := app.Logger.Close(); err != nil {
		return fmt.Errorf("closing log output: %w", err)
	}
	return nil
}

// FromContext retrieves the App instance from the CLI context
func FromContext(c *cli.Context) (*App, error) {
	if c.App.Metadata == nil {
		return nil, fmt.Errorf("app metadata not found in context")
	}

	app, ok := c.App.Metadata["app"].(*App)
	if !ok {
		return nil, fmt.Errorf("app instance not found in context")
	}

	return app, nil
}
