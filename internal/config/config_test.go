package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue int
		expected     int
	}{
		{
			name:         "env not set, return default",
			envValue:     "",
			defaultValue: 3,
			expected:     3,
		},
		{
			name:         "env set to valid int, return int value",
			envValue:     "5",
			defaultValue: 3,
			expected:     5,
		},
		{
			name:         "env set to invalid int, return default",
			envValue:     "five",
			defaultValue: 3,
			expected:     3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_INT_VALUE"
			if tt.envValue != "" {
				t.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}

			assert.Equal(t, tt.expected, getEnvInt(key, tt.defaultValue))
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		expected     bool
	}{
		{"env not set, return default", "", true, true},
		{"env set to true", "true", false, true},
		{"env set to false", "false", true, false},
		{"env set to invalid bool, return default", "nope", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VALUE"
			if tt.envValue != "" {
				t.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}

			assert.Equal(t, tt.expected, getEnvBool(key, tt.defaultValue))
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue time.Duration
		expected     time.Duration
	}{
		{"env not set, return default", "", 30 * time.Second, 30 * time.Second},
		{"env set to valid duration", "6h", 30 * time.Second, 6 * time.Hour},
		{"env set to invalid duration, return default", "often", 30 * time.Second, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_DURATION_VALUE"
			if tt.envValue != "" {
				t.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}

			assert.Equal(t, tt.expected, getEnvDuration(key, tt.defaultValue))
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLogLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLogLevel("warn"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel("bogus"))
	assert.Equal(t, slog.Level(9999), ParseLogLevel("none"))
}

func TestLoadFromEnvDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	for _, v := range []string{
		"NUTRINEST_ENV_FILE", "NUTRINEST_DB_PATH", "NUTRINEST_SYNC_MAX_RETRIES",
		"NUTRINEST_SYNC_BASE_DELAY", "NUTRINEST_SYNC_MIN_DELAY", "NUTRINEST_SYNC_INTERVAL",
		"NUTRINEST_LOG_LEVEL", "NUTRINEST_SERVER_DEVICE_NAME",
	} {
		os.Unsetenv(v)
	}

	cfg, err := LoadFromEnv(dir, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.ConfigDir())
	assert.Equal(t, filepath.Join(dir, "nutrinest.db"), cfg.Database.Path)
	assert.Equal(t, "info", cfg.Logging.Level)

	assert.Equal(t, 3, cfg.Sync.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Sync.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Sync.MinDelay)
	assert.Equal(t, 6*time.Hour, cfg.Sync.Interval)
	assert.True(t, cfg.Sync.RequireNetwork)
	assert.False(t, cfg.Sync.RequireBatteryNotLow)

	assert.Equal(t, 24*time.Hour, cfg.Cache.StalenessThreshold)
	assert.NotEmpty(t, cfg.Server.DeviceName, "a device name is generated when unset")
}

func TestLoadFromEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("NUTRINEST_SYNC_MAX_RETRIES", "5")
	t.Setenv("NUTRINEST_SYNC_BASE_DELAY", "1m")
	t.Setenv("NUTRINEST_LOG_FORMAT", "pretty")
	t.Setenv("NUTRINEST_SERVER_DEVICE_NAME", "kitchen-tablet")

	cfg, err := LoadFromEnv(dir, "")
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Sync.MaxRetries)
	assert.Equal(t, time.Minute, cfg.Sync.BaseDelay)
	assert.Equal(t, "pretty", cfg.Logging.Format)
	assert.Equal(t, "kitchen-tablet", cfg.Server.DeviceName)
}

func TestLoadFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("NUTRINEST_SYNC_BATCH_SIZE=25\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("NUTRINEST_SYNC_BATCH_SIZE") })

	cfg, err := LoadFromEnv(dir, "")
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Sync.BatchSize)
}

func TestSetGet(t *testing.T) {
	Set(nil)

	_, err := Get()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not initialized")

	testCfg := New()
	testCfg.Sync.MaxRetries = 7
	Set(testCfg)

	cfg, err := Get()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Sync.MaxRetries)
}

func validConfig(t *testing.T) *Config {
	cfg := New()
	cfg.Database = DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		BusyTimeout:  5000,
		ConnMaxLife:  5 * time.Minute,
		QueryTimeout: 30 * time.Second,
	}
	cfg.Logging = LoggingConfig{Level: "info", Format: "text"}
	cfg.Server = ServerConfig{Enabled: true, URL: "http://localhost:3000", Timeout: 10 * time.Second}
	cfg.Sync = SyncConfig{Interval: time.Hour, BaseDelay: 30 * time.Second, MinDelay: 30 * time.Second, MaxRetries: 3}
	cfg.Cache = CacheConfig{StalenessThreshold: time.Hour}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"empty db path", func(c *Config) { c.Database.Path = "" }, "database config"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging config"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging config"},
		{"missing url", func(c *Config) { c.Server.URL = "" }, "server config"},
		{"disabled server skips url check", func(c *Config) { c.Server.Enabled = false; c.Server.URL = "" }, ""},
		{"zero base delay", func(c *Config) { c.Sync.BaseDelay = 0 }, "sync config"},
		{"negative retries", func(c *Config) { c.Sync.MaxRetries = -1 }, "sync config"},
		{"zero staleness", func(c *Config) { c.Cache.StalenessThreshold = 0 }, "cache config"},
		{"purge before stale", func(c *Config) { c.Cache.PurgeAfter = time.Minute }, "cache config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateDefaultsConstraintPoll(t *testing.T) {
	cfg := validConfig(t)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Second, cfg.Sync.ConstraintPoll)
}
