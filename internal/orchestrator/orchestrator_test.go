package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsqprocess/dsqprocess/internal/artifact"
	"github.com/dsqprocess/dsqprocess/internal/health"
	"github.com/dsqprocess/dsqprocess/internal/metrics"
	"github.com/dsqprocess/dsqprocess/internal/procerr"
	"github.com/dsqprocess/dsqprocess/internal/registry"
	"github.com/dsqprocess/dsqprocess/internal/sweeper"
)

type fakeLauncher struct {
	mu      sync.Mutex
	nextPID int
	err     error
	calls   []string
}

func (f *fakeLauncher) Launch(path string, minutes int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, path)
	if f.err != nil {
		return 0, f.err
	}
	f.nextPID++
	return f.nextPID, nil
}

// osTable treats every pid in alive as running
type osTable struct {
	mu    sync.Mutex
	alive map[int]bool
	err   error
}

func (t *osTable) set(pid int, alive bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.alive[pid] = alive
}

func (t *osTable) Snapshot(context.Context) (sweeper.Table, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	return t, nil
}

func (t *osTable) Alive(_ context.Context, pid int) (bool, error) {
	return t.alive[pid], nil
}

func (t *osTable) Exe(context.Context, int) (string, error) {
	return "", nil
}

type fixture struct {
	orch     *Orchestrator
	launcher *fakeLauncher
	table    *osTable
	registry *registry.Registry
	base     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	base := t.TempDir()
	tpl := filepath.Join(t.TempDir(), artifact.TemplateName())
	require.NoError(t, os.WriteFile(tpl, []byte("template"), 0o755))

	placer, err := artifact.New(artifact.Options{BaseDir: base, TemplatePath: tpl})
	require.NoError(t, err)

	f := &fixture{
		launcher: &fakeLauncher{nextPID: 1000},
		table:    &osTable{alive: map[int]bool{}},
		registry: registry.New(nil),
		base:     base,
	}
	f.orch = New(Options{
		Placer:   placer,
		Launcher: f.launcher,
		Sweeper:  sweeper.New(sweeper.Options{Source: f.table}),
		Registry: f.registry,
	})
	return f
}

func (f *fixture) start(t *testing.T, folder, exe string) Handle {
	t.Helper()
	h, err := f.orch.Start(folder, exe, 15)
	require.NoError(t, err)
	f.table.set(h.PID, true)
	return h
}

func TestStartResolvesUnderNamespaceRoot(t *testing.T) {
	f := newFixture(t)
	want := filepath.Join(f.base, "Games", "Foo", "foo.exe")

	for _, folder := range []string{"Games/Foo", "Foo", "/Foo", "Games\\Foo", "\\Foo"} {
		h, err := f.orch.Start(folder, "foo.exe", 15)
		require.NoError(t, err, folder)
		assert.Equal(t, want, h.ArtifactPath, folder)
		assert.Equal(t, "foo.exe", h.Name)
		assert.NotEmpty(t, h.ID)
	}
}

func TestStartTracksProcess(t *testing.T) {
	f := newFixture(t)

	h, err := f.orch.Start("Foo", "foo.exe", 15, WithDisplayName("Foo Game"))
	require.NoError(t, err)

	e, ok := f.registry.Get(h.PID)
	require.True(t, ok)
	assert.Equal(t, "Foo Game", e.Name)
	assert.Equal(t, h.ArtifactPath, e.ArtifactPath)
	assert.Equal(t, 15, e.Minutes)
	assert.FileExists(t, h.ArtifactPath)
}

func TestStartEmptyNameTouchesNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Start("Foo", "", 15)
	require.ErrorIs(t, err, procerr.ErrInvalidInput)

	_, statErr := os.Stat(filepath.Join(f.base, "Games"))
	assert.True(t, os.IsNotExist(statErr))
	assert.Empty(t, f.launcher.calls)
	assert.Equal(t, 0, f.registry.Len())
}

func TestStartNegativeDuration(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Start("Foo", "foo.exe", -5)
	assert.ErrorIs(t, err, procerr.ErrInvalidInput)
	assert.Empty(t, f.launcher.calls)
}

func TestLaunchFailureRemovesArtifact(t *testing.T) {
	f := newFixture(t)
	f.launcher.err = procerr.New(procerr.KindIO, "launch", errors.New("exec format error"))

	_, err := f.orch.Start("Foo", "foo.exe", 15)
	require.ErrorIs(t, err, procerr.ErrIO)

	require.Len(t, f.launcher.calls, 1)
	assert.NoFileExists(t, f.launcher.calls[0])
	assert.Equal(t, 0, f.registry.Len())
}

func TestRepeatedStartReplacesArtifact(t *testing.T) {
	f := newFixture(t)

	first := f.start(t, "Foo", "foo.exe")
	second := f.start(t, "Foo", "foo.exe")

	assert.Equal(t, first.ArtifactPath, second.ArtifactPath)
	assert.NotEqual(t, first.PID, second.PID)

	tracked := f.orch.Tracked()
	require.Len(t, tracked, 1, "artifact paths stay unique across tracked records")
	assert.Equal(t, second.PID, tracked[0].PID)
	assert.FileExists(t, second.ArtifactPath)
}

func TestPollLiveProcess(t *testing.T) {
	f := newFixture(t)
	h := f.start(t, "Foo", "foo.exe")

	assert.Empty(t, f.orch.Poll(context.Background()))
	_, ok := f.registry.Get(h.PID)
	assert.True(t, ok)
}

func TestPollDeadProcess(t *testing.T) {
	f := newFixture(t)
	dead := f.start(t, "Foo", "foo.exe")
	live := f.start(t, "Bar", "bar.exe")

	f.table.set(dead.PID, false)

	assert.Equal(t, []string{"foo.exe"}, f.orch.Poll(context.Background()))
	assert.NoFileExists(t, dead.ArtifactPath)
	assert.FileExists(t, live.ArtifactPath)

	_, ok := f.registry.Get(dead.PID)
	assert.False(t, ok)
	assert.Empty(t, f.orch.Poll(context.Background()))
}

func TestPollSnapshotFailure(t *testing.T) {
	f := newFixture(t)
	h := f.start(t, "Foo", "foo.exe")
	f.table.err = errors.New("access denied")

	assert.Empty(t, f.orch.Poll(context.Background()))
	assert.FileExists(t, h.ArtifactPath)
	assert.Equal(t, 1, f.registry.Len())
	assert.Equal(t, 1, f.orch.Health().Report()["consecutive_sweep_failures"])
}

func TestShutdownReclaimsEverything(t *testing.T) {
	f := newFixture(t)
	a := f.start(t, "Foo", "foo.exe")
	b := f.start(t, "Bar", "bar.exe")

	// b's artifact cannot be deleted
	require.NoError(t, os.Remove(b.ArtifactPath))
	require.NoError(t, os.MkdirAll(filepath.Join(b.ArtifactPath, "inner"), 0o755))

	f.orch.Shutdown()

	assert.Equal(t, 0, f.registry.Len())
	assert.NoFileExists(t, a.ArtifactPath)
	assert.DirExists(t, b.ArtifactPath)

	f.orch.Shutdown()
}

func TestDegradedRegistry(t *testing.T) {
	f := newFixture(t)
	f.start(t, "Foo", "foo.exe")

	_, err := f.registry.RemoveDead(func(registry.Entry) bool { panic("boom") })
	require.ErrorIs(t, err, procerr.ErrLockDegraded)

	h, err := f.orch.Start("Bar", "bar.exe", 15)
	require.NoError(t, err, "start succeeds even when the process cannot be tracked")
	assert.FileExists(t, h.ArtifactPath)

	assert.Empty(t, f.orch.Poll(context.Background()))
	assert.True(t, f.orch.Degraded())
	assert.Equal(t, health.StatusUnhealthy, f.orch.Health().Status())

	f.orch.Shutdown()
}

func TestRecorderReceivesTransitions(t *testing.T) {
	f := newFixture(t)
	collector := metrics.NewCollector("dsq")
	f.orch.recorder = collector

	h := f.start(t, "Foo", "foo.exe")
	f.table.set(h.PID, false)
	f.orch.Poll(context.Background())

	var buf bytes.Buffer
	require.NoError(t, collector.WriteText(&buf))
	out := buf.String()
	assert.Contains(t, out, `dsq_state_transitions_total{from="launched",to="tracked"} 1`)
	assert.Contains(t, out, `dsq_state_transitions_total{from="tracked",to="cleaned"} 1`)
	assert.Contains(t, out, "dsq_processes_ended_total 1")
	assert.Contains(t, out, "dsq_tracked_processes 0")
}

func TestRepeatedStartRecordsReplacement(t *testing.T) {
	f := newFixture(t)
	collector := metrics.NewCollector("dsq")
	f.orch.recorder = collector

	first := f.start(t, "Foo", "foo.exe")
	f.start(t, "Foo", "foo.exe")

	assert.Empty(t, f.orch.Poll(context.Background()), "first process is still alive")
	alive, _ := f.table.Alive(context.Background(), first.PID)
	assert.True(t, alive)

	var buf bytes.Buffer
	require.NoError(t, collector.WriteText(&buf))
	out := buf.String()
	assert.Contains(t, out, `dsq_state_transitions_total{from="launched",to="tracked"} 2`)
	assert.Contains(t, out, `dsq_state_transitions_total{from="tracked",to="replaced"} 1`)
	assert.NotContains(t, out, `to="cleaned"`)
	assert.Contains(t, out, "dsq_processes_ended_total 0")
	assert.Contains(t, out, "dsq_tracked_processes 1")
}

func TestReplacedIsNotDead(t *testing.T) {
	assert.False(t, StateReplaced.Dead())
	assert.Equal(t, "replaced", StateReplaced.String())
}
