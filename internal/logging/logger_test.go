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
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("garbage"))
}

func TestNewLoggerWritesFileCopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")

	l, err := NewLogger(Config{Level: slog.LevelInfo, OutputFile: path, JSONFormat: true})
	require.NoError(t, err)

	l.Slog().Info("hello", "k", "v")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"k":"v"`)
}

func TestNewLoggerLevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")

	l, err := NewLogger(Config{Level: slog.LevelWarn, OutputFile: path})
	require.NoError(t, err)

	l.Slog().Info("too quiet")
	l.Slog().Warn("loud enough")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), "too quiet"))
	assert.Contains(t, string(data), "loud enough")
}

func TestCloseWithoutFileIsNoop(t *testing.T) {
	l, err := NewLogger(Config{Level: slog.LevelInfo})
	require.NoError(t, err)
	assert.NoError(t, l.Close())
}
