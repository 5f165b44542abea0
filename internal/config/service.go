package config

import (
	"context"
	"fmt"
	"time"

	"github.com/tildaslashalef/nutrinest/internal/loggy"
)

// SettingsService provides operations for managing application settings
type SettingsService struct {
	repo   SettingsRepository
	config *Config
	logger *loggy.Logger
}

// NewSettingsService creates a new settings service
func NewSettingsService(db Store, config *Config, logger *loggy.Logger) *SettingsService {
	return NewSettingsServiceWithRepository(NewSQLSettingsRepository(db, logger), config, logger)
}

// NewSettingsServiceWithRepository creates a settings service over repo
func NewSettingsServiceWithRepository(repo SettingsRepository, config *Config, logger *loggy.Logger) *SettingsService {
	return &SettingsService{
		repo:   repo,
		config: config,
		logger: logger,
	}
}

// GetSetting retrieves a setting by key
func (s *SettingsService) GetSetting(ctx context.Context, key string) (string, error) {
	return s.repo.GetSetting(ctx, key)
}

// GetSettings retrieves settings by prefix
func (s *SettingsService) GetSettings(ctx context.Context, prefix string) (map[string]string, error) {
	return s.repo.GetSettings(ctx, prefix)
}

// SetSetting sets a setting value
func (s *SettingsService) SetSetting(ctx context.Context, key, value string) error {
	return s.repo.SetSetting(ctx, key, value)
}

// LoadSyncSettings loads persisted sync settings into the Config
func (s *SettingsService) LoadSyncSettings(ctx context.Context) error {
	return LoadSyncSettings(ctx, s.config, s.repo)
}

// SaveSyncSettings saves the Config's sync settings
func (s *SettingsService) SaveSyncSettings(ctx context.Context) error {
	return SaveSyncSettings(ctx, s.config, s.repo)
}

// SetToken stores the bearer token
func (s *SettingsService) SetToken(ctx context.Context, token string) error {
	s.config.Server.Token = token
	return s.repo.SetSetting(ctx, KeyServerToken, token)
}

// SetServerURL stores the remote API URL
func (s *SettingsService) SetServerURL(ctx context.Context, url string) error {
	s.config.Server.URL = url
	return s.repo.SetSetting(ctx, KeyServerURL, url)
}

// SetDeviceName stores the device name
func (s *SettingsService) SetDeviceName(ctx context.Context, name string) error {
	s.config.Server.DeviceName = name
	return s.repo.SetSetting(ctx, KeyDeviceName, name)
}

// SetSyncEnabled toggles remote sync
func (s *SettingsService) SetSyncEnabled(ctx context.Context, enabled bool) error {
	s.config.Server.Enabled = enabled
	return s.repo.SetSetting(ctx, KeySyncEnabled, fmt.Sprintf("%t", enabled))
}

// LastRun is the persisted summary of the most recent sync run
type LastRun struct {
	At      time.Time
	Outcome string
	Error   string
}

// RecordLastRun persists the outcome of a sync run
func (s *SettingsService) RecordLastRun(ctx context.Context, run LastRun) error {
	values := map[string]string{
		KeyLastRunAt:      run.At.UTC().Format(time.RFC3339),
		KeyLastRunOutcome: run.Outcome,
		KeyLastRunError:   run.Error,
	}
	for k, v := range values {
		if err := s.repo.SetSetting(ctx, k, v); err != nil {
			return fmt.Errorf("recording last run: %w", err)
		}
	}
	return nil
}

// GetLastRun returns the persisted summary of the most recent sync run.
// A zero At means no run has been recorded.
func (s *SettingsService) GetLastRun(ctx context.Context) (LastRun, error) {
	settings, err := s.repo.GetSettings(ctx, "sync.last_")
	if err != nil {
		return LastRun{}, err
	}

	run := LastRun{
		Outcome: settings[KeyLastRunOutcome],
		Error:   settings[KeyLastRunError],
	}
	if at := settings[KeyLastRunAt]; at != "" {
		if t, err := time.Parse(time.RFC3339, at); err == nil {
			run.At = t
		} else {
			s.logger.Warn("Invalid last run timestamp", "value", at, "error", err)
		}
	}
	return run, nil
}
