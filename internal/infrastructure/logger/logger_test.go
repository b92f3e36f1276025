package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{
			name: "json to stdout",
			cfg:  &Config{Level: "info", Format: "json", Output: "stdout"},
		},
		{
			name: "console to stderr",
			cfg:  &Config{Level: "debug", Format: "console", Output: "stderr"},
		},
		{
			name: "unknown level falls back to info",
			cfg:  &Config{Level: "verbose", Format: "json", Output: "stdout"},
		},
		{
			name: "empty output defaults to stdout",
			cfg:  &Config{Level: "warn", Format: "json"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.cfg)
			require.NoError(t, err)
			require.NotNil(t, log)
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stockd.log")

	log, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	log.Info("batch received", zap.String("batch_number", "B-2026-001"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "batch received", entry["msg"])
	assert.Equal(t, "B-2026-001", entry["batch_number"])
	assert.NotEmpty(t, entry["time"])
	assert.NotEmpty(t, entry["caller"])
}

func TestNew_LevelFiltersEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stockd.log")

	log, err := New(&Config{Level: "warn", Format: "json", Output: path})
	require.NoError(t, err)

	log.Info("suppressed")
	log.Warn("kept")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "suppressed")
	assert.Contains(t, string(data), "kept")
}

func TestNew_CustomTimeFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stockd.log")

	log, err := New(&Config{
		Level:      "info",
		Format:     "json",
		Output:     path,
		TimeFormat: "2006-01-02",
	})
	require.NoError(t, err)

	log.Info("dated entry")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))

	ts, ok := entry["time"].(string)
	require.True(t, ok)
	assert.Len(t, ts, len("2006-01-02"))
	assert.Equal(t, 2, strings.Count(ts, "-"))
}

func TestSync(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stockd.log")

	log, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	log.Info("flushed")
	assert.NoError(t, Sync(log))
}

func TestSinkPath(t *testing.T) {
	assert.Equal(t, "stdout", sinkPath(""))
	assert.Equal(t, "stdout", sinkPath("stdout"))
	assert.Equal(t, "stdout", sinkPath("STDOUT"))
	assert.Equal(t, "stderr", sinkPath("stderr"))
	assert.Equal(t, "/var/log/stockd.log", sinkPath("/var/log/stockd.log"))
}
