package discord

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunningIsCached(t *testing.T) {
	calls := 0
	names := []string{"explorer.exe", "DiscordCanary.exe"}
	now := time.Now()

	d := &Detector{
		names: func(context.Context) ([]string, error) {
			calls++
			return names, nil
		},
		now: func() time.Time { return now },
	}

	running, err := d.Running(context.Background())
	require.NoError(t, err)
	assert.True(t, running)

	names = []string{"explorer.exe"}
	running, _ = d.Running(context.Background())
	assert.True(t, running, "cached answer")
	assert.Equal(t, 1, calls)

	now = now.Add(CheckInterval + time.Second)
	running, _ = d.Running(context.Background())
	assert.False(t, running)
	assert.Equal(t, 2, calls)
}

func TestInstalledAndOpen(t *testing.T) {
	dir := t.TempDir()
	updater := filepath.Join(dir, "DiscordPTB", "Update.exe")
	require.NoError(t, os.MkdirAll(filepath.Dir(updater), 0o755))
	require.NoError(t, os.WriteFile(updater, nil, 0o755))

	var started []string
	d := &Detector{
		localAppData: dir,
		start: func(name string, args ...string) error {
			started = append([]string{name}, args...)
			return nil
		},
		now: time.Now,
	}

	assert.Equal(t, []Variant{PTB}, d.Installed())

	require.NoError(t, d.Open(PTB))
	assert.Equal(t, []string{updater, "--processStart", "DiscordPTB.exe"}, started)

	assert.ErrorIs(t, d.Open(Stable), ErrNotInstalled)
}

func TestNoLocalAppData(t *testing.T) {
	d := &Detector{now: time.Now}
	assert.Empty(t, d.Installed())
	assert.ErrorIs(t, d.Open(Stable), ErrNotInstalled)
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("Canary")
	require.NoError(t, err)
	assert.Equal(t, Canary, v)

	v, err = ParseVariant("DiscordPTB")
	require.NoError(t, err)
	assert.Equal(t, PTB, v)

	_, err = ParseVariant("nightly")
	assert.Error(t, err)
}
