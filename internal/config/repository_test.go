package config

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tildaslashalef/nutrinest/internal/loggy"
)

// txStore serializes writes the way database.DB does and counts them
type txStore struct {
	db     *sql.DB
	mu     sync.Mutex
	writes int
	tables []string
}

func (s *txStore) SQL() *sql.DB { return s.db }

func (s *txStore) WithTransaction(ctx context.Context, fn func(*sql.Tx) error, tables ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.writes++
	s.tables = append(s.tables, tables...)
	return nil
}

func newMockStore(t *testing.T) (*txStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &txStore{db: db}, mock
}

func newMockRepo(t *testing.T) (*SQLSettingsRepository, sqlmock.Sqlmock) {
	store, mock := newMockStore(t)
	return NewSQLSettingsRepository(store, loggy.NewNoopLogger()), mock
}

func TestTokenObfuscation(t *testing.T) {
	obfuscated := obfuscateToken("secret-token")
	assert.NotEqual(t, "secret-token", obfuscated)
	assert.Contains(t, obfuscated, obfuscationMarker)

	plain, err := deobfuscateToken(obfuscated)
	require.NoError(t, err)
	assert.Equal(t, "secret-token", plain)

	plain, err = deobfuscateToken("not-obfuscated")
	require.NoError(t, err)
	assert.Equal(t, "not-obfuscated", plain)

	assert.Empty(t, obfuscateToken(""))
}

func TestGetSetting(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT value FROM settings WHERE key = \\? LIMIT 1").
		WithArgs(KeyDeviceName).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("kitchen-tablet"))

	value, err := repo.GetSetting(ctx, KeyDeviceName)
	require.NoError(t, err)
	assert.Equal(t, "kitchen-tablet", value)

	mock.ExpectQuery("SELECT value FROM settings WHERE key = \\? LIMIT 1").
		WithArgs(KeyServerURL).
		WillReturnError(sql.ErrNoRows)

	value, err = repo.GetSetting(ctx, KeyServerURL)
	require.NoError(t, err)
	assert.Empty(t, value)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSettingDeobfuscatesToken(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT value FROM settings").
		WithArgs(KeyServerToken).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(obfuscateToken("abc123")))

	value, err := repo.GetSetting(context.Background(), KeyServerToken)
	require.NoError(t, err)
	assert.Equal(t, "abc123", value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetSettingUpserts(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewSQLSettingsRepository(store, loggy.NewNoopLogger())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO settings \\(id,key,value,created_at,updated_at\\) VALUES \\(\\?,\\?,\\?,\\?,\\?\\) ON CONFLICT\\(key\\) DO UPDATE").
		WithArgs(sqlmock.AnyArg(), KeySyncEnabled, "true", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectCommit()

	require.NoError(t, repo.SetSetting(context.Background(), KeySyncEnabled, "true"))
	assert.Equal(t, 1, store.writes)
	assert.Equal(t, []string{"settings"}, store.tables)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingWritesShareTheWriter(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewSQLSettingsRepository(store, loggy.NewNoopLogger())
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM settings WHERE key = \\?").
		WithArgs(KeyLastRunError).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO settings").
		WithArgs(sqlmock.AnyArg(), KeyLastRunOutcome, "failure", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	require.NoError(t, repo.DeleteSetting(ctx, KeyLastRunError))

	err := repo.SetSetting(ctx, KeyLastRunOutcome, "failure")
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Contains(t, err.Error(), "executing upsert setting query")

	assert.Equal(t, 1, store.writes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadSyncSettings(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT key, value FROM settings WHERE key LIKE \\? ORDER BY key").
		WithArgs("sync.%").
		WillReturnRows(sqlmock.NewRows([]string{"key", "value"}).
			AddRow(KeyDeviceName, "phone").
			AddRow(KeySyncEnabled, "false").
			AddRow(KeyServerToken, obfuscateToken("tok")).
			AddRow(KeyServerURL, "https://api.example.com"))

	cfg := New()
	cfg.Server.Enabled = true

	require.NoError(t, LoadSyncSettings(context.Background(), cfg, repo))
	assert.Equal(t, "phone", cfg.Server.DeviceName)
	assert.False(t, cfg.Server.Enabled)
	assert.Equal(t, "tok", cfg.Server.Token)
	assert.Equal(t, "https://api.example.com", cfg.Server.URL)
	assert.NoError(t, mock.ExpectationsWereMet())
}
