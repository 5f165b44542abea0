package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	globalConfig *Config
	configMutex  sync.RWMutex
)

// Get returns the global configuration instance
func Get() (*Config, error) {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if globalConfig == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}

	return globalConfig, nil
}

// Set sets the global configuration instance
func Set(cfg *Config) {
	configMutex.Lock()
	defer configMutex.Unlock()

	globalConfig = cfg
}

// Config represents the complete application configuration
type Config struct {
	Database  DatabaseConfig
	Logging   LoggingConfig
	Server    ServerConfig
	Sync      SyncConfig
	Cache     CacheConfig
	Metrics   MetricsConfig
	configDir string
}

// DatabaseConfig represents the local SQLite store configuration
type DatabaseConfig struct {
	Path            string        // Path to the SQLite database file
	JournalMode     string        // Journal mode (WAL recommended)
	SynchronousMode string        // Synchronous mode
	BusyTimeout     int           // Busy timeout in milliseconds
	CacheSize       int           // Cache size in KiB
	ForeignKeys     bool          // Whether to enforce foreign key constraints
	ConnMaxLife     time.Duration // Maximum connection lifetime
	QueryTimeout    time.Duration // Query timeout
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string // debug, info, warn, error, none
	Format     string // text, json or pretty
	Output     string // stdout, stderr, or file path
	AddSource  bool   // Include source code position in logs
	TimeFormat string // Time format for logs (empty uses RFC3339)
}

// ServerConfig holds configuration for the remote API
type ServerConfig struct {
	Enabled           bool          // Whether remote sync is enabled
	URL               string        // Remote API base URL
	Token             string        // Bearer token
	Timeout           time.Duration // Per-request timeout
	DeviceName        string        // Device name reported with pushed batches
	RequestsPerMinute int           // Client-side rate limit
	BurstLimit        int
}

// SyncConfig holds configuration for the sync scheduler
type SyncConfig struct {
	Interval             time.Duration // Period of the background sync loop
	BaseDelay            time.Duration // Backoff base delay
	MinDelay             time.Duration // Backoff floor
	MaxRetries           int           // Retries after the first attempt before giving up
	RunOnStart           bool          // Trigger a run as soon as the loop starts
	RequireNetwork       bool          // Defer runs until the remote host is reachable
	RequireBatteryNotLow bool          // Defer runs while the battery is low
	BatteryLowPercent    int
	ConstraintPoll       time.Duration // How often unmet constraints are re-checked
	BatchSize            int           // Maximum records per pushed batch, 0 pushes all
}

// CacheConfig holds configuration for remote response memoization and local staleness
type CacheConfig struct {
	TTL                time.Duration // Lifetime of memoized remote responses
	StalenessThreshold time.Duration // Cached catalog items older than this are refetched
	JanitorInterval    time.Duration // How often expired entries are pruned, 0 disables
	PurgeAfter         time.Duration // Catalog items not synced for this long are purged
}

// MetricsConfig holds configuration for the prometheus endpoint
type MetricsConfig struct {
	Addr string // Listen address for /metrics, empty disables
}

// New returns a new empty Config
func New() *Config {
	return &Config{}
}

// ConfigDir returns the directory the configuration was loaded from
func (c *Config) ConfigDir() string {
	return c.configDir
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return fmt.Errorf("database config: %w", err)
	}

	if err := c.validateLogging(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.validateServer(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.validateSync(); err != nil {
		return fmt.Errorf("sync config: %w", err)
	}

	if err := c.validateCache(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	return nil
}

// ParseLogLevel parses a log level string to a slog.Level
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "none":
		return slog.Level(9999)
	default:
		return slog.LevelInfo
	}
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	if c.Database.Path != ":memory:" && !strings.HasPrefix(c.Database.Path, "file::memory:") {
		dir := filepath.Dir(c.Database.Path)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create directory for database: %w", err)
			}
		}

		if err := checkDirectoryWritable(dir); err != nil {
			return fmt.Errorf("database directory: %w", err)
		}
	}

	if c.Database.BusyTimeout <= 0 {
		return fmt.Errorf("busy timeout must be positive")
	}

	if c.Database.ConnMaxLife <= 0 {
		return fmt.Errorf("connection max life must be positive")
	}

	if c.Database.QueryTimeout <= 0 {
		return fmt.Errorf("query timeout must be positive")
	}

	return nil
}

func (c *Config) validateLogging() error {
	level := strings.ToLower(c.Logging.Level)
	if level != "debug" && level != "info" && level != "warn" && level != "error" && level != "none" {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	format := strings.ToLower(c.Logging.Format)
	if format != "text" && format != "json" && format != "pretty" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

func (c *Config) validateServer() error {
	if !c.Server.Enabled {
		return nil
	}

	if c.Server.URL == "" {
		return fmt.Errorf("url cannot be empty when sync is enabled")
	}

	if c.Server.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if c.Server.RequestsPerMinute < 0 {
		return fmt.Errorf("requests per minute cannot be negative")
	}

	if c.Server.RequestsPerMinute > 0 && c.Server.BurstLimit <= 0 {
		c.Server.BurstLimit = 1
	}

	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}

	if c.Sync.BaseDelay <= 0 {
		return fmt.Errorf("base delay must be positive")
	}

	if c.Sync.MinDelay < 0 {
		return fmt.Errorf("min delay cannot be negative")
	}

	if c.Sync.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	if c.Sync.BatchSize < 0 {
		return fmt.Errorf("batch size cannot be negative")
	}

	if c.Sync.ConstraintPoll <= 0 {
		c.Sync.ConstraintPoll = 30 * time.Second
	}

	if c.Sync.BatteryLowPercent < 0 || c.Sync.BatteryLowPercent > 100 {
		return fmt.Errorf("battery low percent must be between 0 and 100")
	}

	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.TTL < 0 {
		return fmt.Errorf("ttl cannot be negative")
	}

	if c.Cache.StalenessThreshold <= 0 {
		return fmt.Errorf("staleness threshold must be positive")
	}

	if c.Cache.PurgeAfter > 0 && c.Cache.PurgeAfter < c.Cache.StalenessThreshold {
		return fmt.Errorf("purge after must not be shorter than the staleness threshold")
	}

	return nil
}

// getEnvString returns a string from the environment variable
func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns an int from the environment variable
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool returns a bool from the environment variable
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration returns a time.Duration from the environment variable
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getTimeFormat converts a named time format to its layout
func getTimeFormat(name string) string {
	switch name {
	case "RFC3339":
		return time.RFC3339
	case "RFC3339Nano":
		return time.RFC3339Nano
	case "Kitchen":
		return time.Kitchen
	case "DateTime":
		return time.DateTime
	case "DateOnly":
		return time.DateOnly
	case "TimeOnly":
		return time.TimeOnly
	default:
		return name
	}
}

// checkDirectoryWritable tests if a directory is writable
func checkDirectoryWritable(dir string) error {
	testFile := filepath.Join(dir, fmt.Sprintf("test_write_%d", time.Now().UnixNano()))
	f, err := os.Create(testFile)
	if err != nil {
		return fmt.Errorf("directory not writable: %w", err)
	}

	f.Close()
	os.Remove(testFile)

	return nil
}
