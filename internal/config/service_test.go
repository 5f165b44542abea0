package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tildaslashalef/nutrinest/internal/loggy"
)

type memSettings map[string]string

func (m memSettings) GetSetting(_ context.Context, key string) (string, error) {
	return m[key], nil
}

func (m memSettings) GetSettings(_ context.Context, prefix string) (map[string]string, error) {
	out := map[string]string{}
	for k, v := range m {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out, nil
}

func (m memSettings) SetSetting(_ context.Context, key, value string) error {
	m[key] = value
	return nil
}

func (m memSettings) DeleteSetting(_ context.Context, key string) error {
	delete(m, key)
	return nil
}

func TestLastRunRoundTrip(t *testing.T) {
	svc := NewSettingsServiceWithRepository(memSettings{}, New(), loggy.NewNoopLogger())
	ctx := context.Background()

	run, err := svc.GetLastRun(ctx)
	require.NoError(t, err)
	assert.True(t, run.At.IsZero(), "no run recorded yet")

	at := time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)
	require.NoError(t, svc.RecordLastRun(ctx, LastRun{At: at, Outcome: "failure", Error: "server error (503)"}))

	run, err = svc.GetLastRun(ctx)
	require.NoError(t, err)
	assert.True(t, at.Equal(run.At))
	assert.Equal(t, "failure", run.Outcome)
	assert.Equal(t, "server error (503)", run.Error)
}

func TestLinkSettingsUpdateConfig(t *testing.T) {
	repo := memSettings{}
	cfg := New()
	svc := NewSettingsServiceWithRepository(repo, cfg, loggy.NewNoopLogger())
	ctx := context.Background()

	require.NoError(t, svc.SetServerURL(ctx, "https://api.example.com"))
	require.NoError(t, svc.SetDeviceName(ctx, "kitchen-tablet"))
	require.NoError(t, svc.SetSyncEnabled(ctx, true))

	assert.Equal(t, "https://api.example.com", cfg.Server.URL)
	assert.Equal(t, "kitchen-tablet", cfg.Server.DeviceName)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, "true", repo[KeySyncEnabled])
}
