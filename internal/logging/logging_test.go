package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RNCC-Cubesat/kubos/internal/config"
)

func TestNewStdout(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(config.LogConfig{Level: "info"}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.Debug("hidden")
	logger.Info("bus ready", "modules", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=\"bus ready\"")
	assert.Contains(t, out, "service=pumpkin-mcu-service")
	assert.Contains(t, out, "modules=2")
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")

	var buf bytes.Buffer
	logger, closer, err := New(config.LogConfig{Level: "debug", File: path, MaxSizeMB: 1}, &buf)
	require.NoError(t, err)

	logger.Debug("telemetry read", "module", "EPS")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "module=EPS")
	assert.Contains(t, buf.String(), "module=EPS")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("trace")
	assert.Error(t, err)

	_, _, err = New(config.LogConfig{Level: "trace"}, &bytes.Buffer{})
	assert.Error(t, err)
}
