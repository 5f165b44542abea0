package config

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/tildaslashalef/nutrinest/internal/loggy"
	"github.com/tildaslashalef/nutrinest/internal/ulid"
)

// Setting keys persisted in the settings table
const (
	KeyServerURL      = "sync.server_url"
	KeyServerToken    = "sync.server_token"
	KeyDeviceName     = "sync.device_name"
	KeySyncEnabled    = "sync.enabled"
	KeyLastRunAt      = "sync.last_run_at"
	KeyLastRunOutcome = "sync.last_outcome"
	KeyLastRunError   = "sync.last_error"
)

const obfuscationMarker = "OBFS:"

// Setting is a persisted key/value pair
type Setting struct {
	ID        string
	Key       string
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SettingsRepository defines operations for managing settings in the database
type SettingsRepository interface {
	// GetSetting returns the value for key, or "" when unset
	GetSetting(ctx context.Context, key string) (string, error)

	// GetSettings returns all settings whose key starts with prefix
	GetSettings(ctx context.Context, prefix string) (map[string]string, error)

	// SetSetting inserts or updates key
	SetSetting(ctx context.Context, key, value string) error

	// DeleteSetting removes key
	DeleteSetting(ctx context.Context, key string) error
}

// Store is the local database seen by the settings repository. Reads use
// the pool directly; writes share the store's single writer.
type Store interface {
	SQL() *sql.DB
	WithTransaction(ctx context.Context, fn func(*sql.Tx) error, tables ...string) error
}

// SQLSettingsRepository implements SettingsRepository using squirrel over SQLite
type SQLSettingsRepository struct {
	db      Store
	builder sq.StatementBuilderType
	logger  *loggy.Logger
	now     func() time.Time
}

// NewSQLSettingsRepository creates a new SQL settings repository
func NewSQLSettingsRepository(db Store, logger *loggy.Logger) *SQLSettingsRepository {
	return &SQLSettingsRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// GetSetting retrieves a setting by key
func (r *SQLSettingsRepository) GetSetting(ctx context.Context, key string) (string, error) {
	query, args, err := r.builder.Select("value").
		From("settings").
		Where(sq.Eq{"key": key}).
		Limit(1).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("building get setting query: %w", err)
	}

	var value string
	if err := r.db.SQL().QueryRowContext(ctx, query, args...).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("executing get setting query: %w", err)
	}

	if key == KeyServerToken {
		return deobfuscateToken(value)
	}
	return value, nil
}

// GetSettings retrieves settings by key prefix
func (r *SQLSettingsRepository) GetSettings(ctx context.Context, prefix string) (map[string]string, error) {
	query, args, err := r.builder.Select("key", "value").
		From("settings").
		Where(sq.Like{"key": prefix + "%"}).
		OrderBy("key").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building get settings query: %w", err)
	}

	rows, err := r.db.SQL().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing get settings query: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning setting row: %w", err)
		}

		if key == KeyServerToken {
			value, err = deobfuscateToken(value)
			if err != nil {
				r.logger.Warn("Failed to deobfuscate token", "error", err)
				continue
			}
		}

		settings[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating setting rows: %w", err)
	}

	return settings, nil
}

// SetSetting upserts a setting
func (r *SQLSettingsRepository) SetSetting(ctx context.Context, key, value string) error {
	if key == KeyServerToken {
		value = obfuscateToken(value)
	}

	now := r.now()
	query, args, err := r.builder.Insert("settings").
		Columns("id", "key", "value", "created_at", "updated_at").
		Values(ulid.SettingID(), key, value, now, now).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building upsert setting query: %w", err)
	}

	return r.exec(ctx, query, args, "upsert")
}

// DeleteSetting deletes a setting
func (r *SQLSettingsRepository) DeleteSetting(ctx context.Context, key string) error {
	query, args, err := r.builder.Delete("settings").
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete setting query: %w", err)
	}

	return r.exec(ctx, query, args, "delete")
}

func (r *SQLSettingsRepository) exec(ctx context.Context, query string, args []any, op string) error {
	return r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("executing %s setting query: %w", op, err)
		}
		return nil
	}, "settings")
}

// LoadSyncSettings overlays persisted sync settings onto cfg
func LoadSyncSettings(ctx context.Context, cfg *Config, repo SettingsRepository) error {
	settings, err := repo.GetSettings(ctx, "sync.")
	if err != nil {
		return fmt.Errorf("loading sync settings: %w", err)
	}

	if v := settings[KeyServerURL]; v != "" {
		cfg.Server.URL = v
	}
	if v := settings[KeyServerToken]; v != "" {
		cfg.Server.Token = v
	}
	if v := settings[KeyDeviceName]; v != "" {
		cfg.Server.DeviceName = v
	}
	if v := settings[KeySyncEnabled]; v != "" {
		cfg.Server.Enabled = v == "true"
	}

	return nil
}

// SaveSyncSettings persists the sync settings held in cfg
func SaveSyncSettings(ctx context.Context, cfg *Config, repo SettingsRepository) error {
	values := []struct{ key, value string }{
		{KeyServerURL, cfg.Server.URL},
		{KeyServerToken, cfg.Server.Token},
		{KeyDeviceName, cfg.Server.DeviceName},
		{KeySyncEnabled, fmt.Sprintf("%t", cfg.Server.Enabled)},
	}

	for _, v := range values {
		if err := repo.SetSetting(ctx, v.key, v.value); err != nil {
			return fmt.Errorf("saving %s: %w", v.key, err)
		}
	}

	return nil
}

// obfuscateToken reverses and base64-encodes the token. This is obfuscation, not encryption.
func obfuscateToken(token string) string {
	if token == "" {
		return ""
	}
	return obfuscationMarker + base64.StdEncoding.EncodeToString([]byte(reverse(token)))
}

func deobfuscateToken(value string) (string, error) {
	if !strings.HasPrefix(value, obfuscationMarker) {
		return value, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, obfuscationMarker))
	if err != nil {
		return "", fmt.Errorf("decoding obfuscated token: %w", err)
	}

	return reverse(string(decoded)), nil
}

func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
