package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(WARN, false, &buf)

	l.Info("hidden")
	l.Warn("shown", Fields{"pid": 7})

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WARN: shown pid=7")
}

func TestJSONEntryCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(DEBUG, true, &buf).Component("sweeper").WithField("sweep", 3)

	l.Error("cleanup failed", Fields{"err": errors.New("busy")})

	var entry LogEntry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "ERROR", entry.Level)
	assert.Equal(t, "sweeper", entry.Component)
	assert.Equal(t, "busy", entry.Fields["err"])
	assert.EqualValues(t, 3, entry.Fields["sweep"])
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := New(INFO, false, &buf)
	_ = parent.WithField("child", true)

	parent.Info("plain")
	assert.NotContains(t, buf.String(), "child")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("WARNING"))
	assert.Equal(t, INFO, ParseLevel("nonsense"))
}

func TestFileLoggerRotation(t *testing.T) {
	dir := t.TempDir()
	l, err := NewFileLogger(dir, "dsqprocess", INFO, false)
	require.NoError(t, err)
	defer l.Close()

	l.Info(strings.Repeat("x", 64))
	require.NoError(t, l.RotateIfNeeded(16))

	entries, err := os.ReadDir(filepath.Join(dir, "dsqprocess"))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "expected live log plus one backup")
}
