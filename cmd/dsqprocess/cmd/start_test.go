package cmd

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsqprocess/dsqprocess/internal/app"
	"github.com/dsqprocess/dsqprocess/internal/config"
	"github.com/dsqprocess/dsqprocess/internal/logging"
	"github.com/dsqprocess/dsqprocess/internal/metrics"
	"github.com/dsqprocess/dsqprocess/internal/orchestrator"
	"github.com/dsqprocess/dsqprocess/internal/registry"
)

// exitingOrch reports every tracked process as ended after a few polls
type exitingOrch struct {
	mu        sync.Mutex
	tracked   []registry.Entry
	polls     int
	endAfter  int
	shutdowns int
}

func (o *exitingOrch) Start(folder, exe string, minutes int, opts ...orchestrator.StartOption) (orchestrator.Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	pid := 100 + len(o.tracked)
	o.tracked = append(o.tracked, registry.Entry{PID: pid, Name: exe, Folder: folder, Minutes: minutes})
	return orchestrator.Handle{PID: pid, Name: exe}, nil
}

func (o *exitingOrch) Poll(context.Context) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.polls++
	if o.polls < o.endAfter {
		return nil
	}
	var names []string
	for _, e := range o.tracked {
		names = append(names, e.Name)
	}
	o.tracked = nil
	return names
}

func (o *exitingOrch) Shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.shutdowns++
}

func (o *exitingOrch) Tracked() []registry.Entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]registry.Entry(nil), o.tracked...)
}

func useFakeRuntime(t *testing.T, orch *exitingOrch) *config.Config {
	t.Helper()

	prevCfg, prevLogger, prevBuild := cfg, logger, buildRuntime
	prevPreset, prevFolder, prevExe, prevMinutes := startPreset, startFolder, startExe, startMinutes
	t.Cleanup(func() {
		cfg, logger, buildRuntime = prevCfg, prevLogger, prevBuild
		startPreset, startFolder, startExe, startMinutes = prevPreset, prevFolder, prevExe, prevMinutes
	})

	cfg = config.Default()
	cfg.PresetsDir = t.TempDir()
	cfg.LangDir = t.TempDir()
	cfg.PollInterval = 10 * time.Millisecond
	logger = logging.Discard()

	buildRuntime = func() (*app.Runtime, error) {
		return &app.Runtime{
			App:     app.New(app.Options{Config: cfg, Orchestrator: orch}),
			Metrics: metrics.NewCollector("dsq"),
		}, nil
	}
	return cfg
}

func runStartWithTimeout(t *testing.T) error {
	t.Helper()
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- runStart(cmd, nil) }()

	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("start did not return after the tracked set emptied")
		return nil
	}
}

func TestRunStartReturnsWhenTrackedSetEmpties(t *testing.T) {
	orch := &exitingOrch{endAfter: 2}
	c := useFakeRuntime(t, orch)
	startPreset, startFolder, startExe, startMinutes = -1, "Foo", "foo.exe", 5

	require.NoError(t, runStartWithTimeout(t))

	orch.mu.Lock()
	defer orch.mu.Unlock()
	assert.GreaterOrEqual(t, orch.polls, 2)
	assert.Empty(t, orch.tracked)
	assert.Equal(t, 1, orch.shutdowns, "cleanup runs once on exit")
	assert.Equal(t, 5, c.DurationMinutes)
}

func TestRunStartRequiresTarget(t *testing.T) {
	orch := &exitingOrch{}
	useFakeRuntime(t, orch)
	startPreset, startFolder, startExe, startMinutes = -1, "", "", -1

	err := runStart(&cobra.Command{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--preset or --exe")
	assert.Zero(t, orch.shutdowns)
}
