package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflow-engine/backend/internal/config"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	logger, err := New(config.LogConfig{Level: "debug", Format: "json", Output: "stdout"})
	require.NoError(t, err)

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.Info("step finished", "app_id", "APP-1", "error", errors.New("boom"))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "step finished", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "APP-1", line["app_id"])
	assert.Equal(t, "boom", line["error"])
}

func TestLoggerLevelFiltering(t *testing.T) {
	logger, err := New(config.LogConfig{Level: "warn", Format: "text"})
	require.NoError(t, err)

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.Info("hidden")
	assert.Empty(t, buf.String())

	require.NoError(t, logger.SetLevel("info"))
	logger.Info("shown")
	assert.Contains(t, buf.String(), "shown")

	assert.Error(t, logger.SetLevel("loud"))
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "engine.log")
	logger, err := New(config.LogConfig{Level: "info", Format: "text", Output: "file", FilePath: path, MaxSize: 1})
	require.NoError(t, err)

	logger.Error("persist failed", "app_id", "APP-2")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "persist failed")
	assert.Contains(t, string(data), "app_id=APP-2")
}

func TestNewRejectsUnknownSettings(t *testing.T) {
	_, err := New(config.LogConfig{Format: "xml"})
	assert.Error(t, err)

	_, err = New(config.LogConfig{Output: "file"})
	assert.Error(t, err)
}

func TestFieldsOddArgs(t *testing.T) {
	f := fields([]interface{}{"a", 1, "dangling"})
	assert.Equal(t, 1, f["a"])
	assert.Equal(t, "dangling", f["arg"])
}
