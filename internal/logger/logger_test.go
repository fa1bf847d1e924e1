package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chai-assistant/internal/config"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	log.Info("dropped")
	log.Warn("kept", "thread_id", "t1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "t1", line["thread_id"])
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(config.LogConfig{Format: "text"}, &buf)
	require.NoError(t, err)

	log.Info("hello", "k", "v")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "k=v")
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chai.log")
	var buf bytes.Buffer
	log, err := New(config.LogConfig{File: path}, &buf)
	require.NoError(t, err)

	log.Info("to file")
	assert.Empty(t, buf.String())
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "to file")
}

func TestNewRejectsUnknown(t *testing.T) {
	_, err := New(config.LogConfig{Format: "xml"}, nil)
	assert.Error(t, err)

	_, err = New(config.LogConfig{Level: "loud"}, nil)
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}
	for raw, want := range tests {
		got, err := ParseLevel(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}
