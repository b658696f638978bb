package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medscout/rxsearch/pkg/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"WARN", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "level %q", tt.in)
			continue
		}
		require.NoError(t, err, "level %q", tt.in)
		assert.Equal(t, tt.want, got, "level %q", tt.in)
	}
}

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rxsearch.log")
	cfg := &config.LoggerConfig{Level: "info", File: path, Format: "json"}

	logger, cleanup, err := Init(cfg)
	require.NoError(t, err)
	require.NotNil(t, cleanup)
	defer cleanup()

	logger.Info("index ready", "collection", "drugs_idx")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"collection":"drugs_idx"`)
}

func TestInitRejectsBadLevel(t *testing.T) {
	_, _, err := Init(&config.LoggerConfig{Level: "loud"})
	assert.Error(t, err)
}
