package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")

	logger, err := NewLogger(LogConfig{File: path})
	require.NoError(t, err)
	logger.Debug("hidden")
	logger.Info("Engine started")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"msg":"Engine started"`)
	assert.Contains(t, out, `"timestamp"`)
	assert.NotContains(t, out, "hidden")
}

func TestNewLoggerDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")

	logger, err := NewLogger(LogConfig{File: path, Debug: true})
	require.NoError(t, err)
	logger.Debug("nonce reserved")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "nonce reserved"))
}

func TestNewLoggerBadPath(t *testing.T) {
	_, err := NewLogger(LogConfig{File: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	assert.Error(t, err)
}
