package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateDeviceName(t *testing.T) {
	name := GenerateDeviceName()
	assert.NotEmpty(t, name)
	assert.False(t, strings.Contains(name, "_"))
}

func TestFormatAgo(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Time{}, "never"},
		{now.Add(-3 * time.Hour), "3h ago"},
		{now.Add(-72 * time.Hour), "3d ago"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatAgo(tt.at, now))
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "Oats", Truncate("Oats", 10))
	assert.Equal(t, "Greek y…", Truncate("Greek yoghurt", 8))
	assert.Equal(t, "abc", Truncate("abc", 1))
}
