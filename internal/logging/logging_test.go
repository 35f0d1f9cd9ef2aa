package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.input), "level %q", tt.input)
	}
}

func TestSetupWritesJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "medfuse.log")

	logger, cleanup, err := Setup(Config{
		Level:         "info",
		FilePath:      path,
		WriteToStderr: false,
	})
	require.NoError(t, err)

	logger.Info("engine started", slog.String("preset", "balanced"))
	logger.Debug("should be filtered")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, `"msg":"engine started"`)
	assert.Contains(t, content, `"preset":"balanced"`)
	assert.NotContains(t, content, "should be filtered")
}

func TestRotatingWriterRotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "medfuse.log")

	w, err := NewRotatingWriter(path, 1, 3)
	require.NoError(t, err)
	// Shrink the limit so a handful of writes triggers rotation.
	w.maxBytes = 64

	line := strings.Repeat("x", 40) + "\n"
	for i := 0; i < 4; i++ {
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	_, err = os.Stat(path)
	assert.NoError(t, err, "current log file exists")
	_, err = os.Stat(path + ".1")
	assert.NoError(t, err, "rotated file exists")
}

func TestRotatingWriterKeepsMaxFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "medfuse.log")

	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	w.maxBytes = 16

	for i := 0; i < 10; i++ {
		_, err := w.Write([]byte(strings.Repeat("y", 12) + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err), "rotation beyond MaxFiles should not exist")
}
