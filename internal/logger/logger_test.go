package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recruit-inbox/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, ParseLevel("fatal"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestJSONHandlerWritesAttributes(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, &config.LoggerConfig{Level: "INFO", Format: "json"}, false)
	slog.New(h).Info("message appended", "sender", "a", "recipient", "b")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "message appended", entry["msg"])
	assert.Equal(t, "a", entry["sender"])
}

func TestTextHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, &config.LoggerConfig{Level: "WARN", Format: "text"}, true)
	l := slog.New(h)
	l.Info("hidden")
	l.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestSetupCreatesLogDirectory(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := t.TempDir() + "/logs"
	_, err := Setup(&config.LoggerConfig{Level: "INFO", Format: "text", Directory: dir, MaxSize: 1})
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}
