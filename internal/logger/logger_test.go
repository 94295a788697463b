package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCriticalLevelIsRendered(t *testing.T) {
	var buf bytes.Buffer
	l := New("info", "json", &buf)

	Critical(l, "Error processing card", "layer", 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "CRITICAL", entry["level"])
	assert.Equal(t, "Error processing card", entry["msg"])
	assert.Equal(t, float64(2), entry["layer"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New("warn", "text", &buf)

	l.Info("hidden")
	l.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")

	l, closer, err := NewFile("debug", "text", path)
	require.NoError(t, err)
	l.Debug("hello")
	require.NoError(t, closer.Close())

	assert.FileExists(t, path)
}
