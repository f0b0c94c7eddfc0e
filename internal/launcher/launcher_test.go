//go:build !windows

package launcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsqprocess/dsqprocess/internal/procerr"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "child.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestLaunchPassesMinutesAndReaps(t *testing.T) {
	script := writeScript(t, `echo "$1" > "$(dirname "$0")/arg"; exit 3`)

	exits := make(chan Exit, 1)
	l := New(Options{OnExit: func(e Exit) { exits <- e }})

	pid, err := l.Launch(script, 15)
	require.NoError(t, err)
	assert.Greater(t, pid, 0)

	select {
	case e := <-exits:
		assert.Equal(t, pid, e.PID)
		assert.Equal(t, 3, e.Code)
		assert.NoError(t, e.Err)
	case <-time.After(5 * time.Second):
		t.Fatal("child was not reaped")
	}

	data, err := os.ReadFile(filepath.Join(filepath.Dir(script), "arg"))
	require.NoError(t, err)
	assert.Equal(t, "15\n", string(data))
}

func TestLaunchMissingBinary(t *testing.T) {
	l := New(Options{})

	_, err := l.Launch(filepath.Join(t.TempDir(), "missing"), 15)
	require.Error(t, err)
	assert.ErrorIs(t, err, procerr.ErrIO)
}

func TestLaunchNegativeMinutes(t *testing.T) {
	l := New(Options{})

	_, err := l.Launch(writeScript(t, "exit 0"), -1)
	assert.ErrorIs(t, err, procerr.ErrInvalidInput)
}
