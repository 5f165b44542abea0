package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/tildaslashalef/nutrinest/internal/utils"
)

// DefaultConfigDir returns ~/.nutrinest
func DefaultConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".nutrinest"), nil
}

// LoadFromEnv loads configuration from environment variables.
// configDir defaults to ~/.nutrinest and configFilePath to <configDir>/.env.
// NUTRINEST_ENV_FILE overrides both when set.
func LoadFromEnv(configDir string, configFilePath string) (*Config, error) {
	cfg := New()

	if configDir == "" {
		dir, err := DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		configDir = dir
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	cfg.configDir = configDir

	if configFilePath == "" {
		configFilePath = filepath.Join(configDir, ".env")
	}

	if envFilePath := getEnvString("NUTRINEST_ENV_FILE", ""); envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			return nil, fmt.Errorf("failed to load env file from %s: %w", envFilePath, err)
		}
	} else if err := godotenv.Load(configFilePath); err != nil {
		_ = godotenv.Load()
	}

	cfg.Database = DatabaseConfig{
		Path:            getEnvString("NUTRINEST_DB_PATH", filepath.Join(configDir, "nutrinest.db")),
		BusyTimeout:     getEnvInt("NUTRINEST_DB_BUSY_TIMEOUT", 5000),
		JournalMode:     getEnvString("NUTRINEST_DB_JOURNAL_MODE", "WAL"),
		SynchronousMode: getEnvString("NUTRINEST_DB_SYNCHRONOUS_MODE", "NORMAL"),
		CacheSize:       getEnvInt("NUTRINEST_DB_CACHE_SIZE", -16000),
		ForeignKeys:     getEnvBool("NUTRINEST_DB_FOREIGN_KEYS", true),
		ConnMaxLife:     getEnvDuration("NUTRINEST_DB_CONN_MAX_LIFE", 5*time.Minute),
		QueryTimeout:    getEnvDuration("NUTRINEST_DB_QUERY_TIMEOUT", 30*time.Second),
	}

	cfg.Logging = LoggingConfig{
		Level:      getEnvString("NUTRINEST_LOG_LEVEL", "info"),
		Format:     getEnvString("NUTRINEST_LOG_FORMAT", "text"),
		Output:     getEnvString("NUTRINEST_LOG_OUTPUT", filepath.Join(configDir, "nutrinest.log")),
		AddSource:  getEnvBool("NUTRINEST_LOG_ADD_SOURCE", false),
		TimeFormat: getTimeFormat(getEnvString("NUTRINEST_LOG_TIME_FORMAT", "RFC3339")),
	}

	cfg.Server = ServerConfig{
		Enabled:           getEnvBool("NUTRINEST_SERVER_ENABLED", true),
		URL:               getEnvString("NUTRINEST_SERVER_URL", "http://localhost:3000"),
		Token:             getEnvString("NUTRINEST_SERVER_TOKEN", ""),
		Timeout:           getEnvDuration("NUTRINEST_SERVER_TIMEOUT", 30*time.Second),
		DeviceName:        getEnvString("NUTRINEST_SERVER_DEVICE_NAME", ""),
		RequestsPerMinute: getEnvInt("NUTRINEST_SERVER_REQUESTS_PER_MINUTE", 60),
		BurstLimit:        getEnvInt("NUTRINEST_SERVER_BURST_LIMIT", 5),
	}
	if cfg.Server.DeviceName == "" {
		cfg.Server.DeviceName = utils.GenerateDeviceName()
	}

	cfg.Sync = SyncConfig{
		Interval:             getEnvDuration("NUTRINEST_SYNC_INTERVAL", 6*time.Hour),
		BaseDelay:            getEnvDuration("NUTRINEST_SYNC_BASE_DELAY", 30*time.Second),
		MinDelay:             getEnvDuration("NUTRINEST_SYNC_MIN_DELAY", 30*time.Second),
		MaxRetries:           getEnvInt("NUTRINEST_SYNC_MAX_RETRIES", 3),
		RunOnStart:           getEnvBool("NUTRINEST_SYNC_RUN_ON_START", true),
		RequireNetwork:       getEnvBool("NUTRINEST_SYNC_REQUIRE_NETWORK", true),
		RequireBatteryNotLow: getEnvBool("NUTRINEST_SYNC_REQUIRE_BATTERY_NOT_LOW", false),
		BatteryLowPercent:    getEnvInt("NUTRINEST_SYNC_BATTERY_LOW_PERCENT", 15),
		ConstraintPoll:       getEnvDuration("NUTRINEST_SYNC_CONSTRAINT_POLL", 30*time.Second),
		BatchSize:            getEnvInt("NUTRINEST_SYNC_BATCH_SIZE", 0),
	}

	cfg.Cache = CacheConfig{
		TTL:                getEnvDuration("NUTRINEST_CACHE_TTL", 5*time.Minute),
		StalenessThreshold: getEnvDuration("NUTRINEST_CACHE_STALENESS_THRESHOLD", 24*time.Hour),
		JanitorInterval:    getEnvDuration("NUTRINEST_CACHE_JANITOR_INTERVAL", 10*time.Minute),
		PurgeAfter:         getEnvDuration("NUTRINEST_CACHE_PURGE_AFTER", 30*24*time.Hour),
	}

	cfg.Metrics = MetricsConfig{
		Addr: getEnvString("NUTRINEST_METRICS_ADDR", ""),
	}

	return cfg, cfg.Validate()
}
