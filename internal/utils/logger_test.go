package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, WARNING)

	logger.Info("hidden", nil)
	logger.Warn("book write slow", map[string]interface{}{"id": "42", "duration_ms": 12})

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARNING]")
	assert.Contains(t, out, "logger_test.go")
	assert.Contains(t, out, "book write slow | duration_ms=12 id=42")
}

func TestLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, DEBUG)
	logger.Enable(false)

	logger.Errorf("nothing %d", 1)
	assert.Empty(t, buf.String())
}

func TestLogger_FatalCallsExit(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, DEBUG)
	code := -1
	logger.exit = func(c int) { code = c }

	logger.Fatalf("boom")
	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "[FATAL]")
}

func TestLogger_OpenFile(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, INFO)
	path := filepath.Join(t.TempDir(), "nested", "server.log")

	require.NoError(t, logger.OpenFile(path))
	logger.Infof("saved %s", "bookList.json")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "saved bookList.json")
	assert.Contains(t, buf.String(), "saved bookList.json")
}
