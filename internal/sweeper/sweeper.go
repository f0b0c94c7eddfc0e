// Package sweeper reconciles the registry with the OS process table and reclaims the artifacts
// of processes that ended.
package sweeper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/dsqprocess/dsqprocess/internal/logging"
	"github.com/dsqprocess/dsqprocess/internal/procerr"
	"github.com/dsqprocess/dsqprocess/internal/registry"
)

// DefaultGrace lets the OS release file locks held by an exiting process
const DefaultGrace = 100 * time.Millisecond

// Options configures a Sweeper
type Options struct {
	Source           Source
	Grace            time.Duration
	VerifyExecutable bool
	Logger           *logging.Logger
}

// Sweeper runs liveness sweeps
type Sweeper struct {
	source Source
	grace  time.Duration
	verify bool
	logger *logging.Logger
}

// Report is the outcome of one sweep
type Report struct {
	Ended    []registry.Entry
	Cleaned  int
	Failed   int
	Duration time.Duration
	// Err is set when the process table could not be read or the registry is degraded;
	// nothing was removed in that case.
	Err error
}

// Names returns the display names of the ended entries
func (r Report) Names() []string {
	if len(r.Ended) == 0 {
		return nil
	}
	names := make([]string, len(r.Ended))
	for i, e := range r.Ended {
		names[i] = e.Name
	}
	return names
}

// New creates a Sweeper; a nil Source uses the gopsutil snapshot table
func New(opts Options) *Sweeper {
	source := opts.Source
	if source == nil {
		source = NewSource(ModeSnapshot)
	}
	grace := opts.Grace
	if grace < 0 {
		grace = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Sweeper{
		source: source,
		grace:  grace,
		verify: opts.VerifyExecutable,
		logger: logger.Component("sweeper"),
	}
}

// Sweep runs one pass over reg and returns the names of every process that ended
func (s *Sweeper) Sweep(ctx context.Context, reg *registry.Registry) []string {
	return s.Run(ctx, reg).Names()
}

// Run runs one pass over reg and reports the details
func (s *Sweeper) Run(ctx context.Context, reg *registry.Registry) Report {
	start := time.Now()
	report := s.run(ctx, reg)
	report.Duration = time.Since(start)
	return report
}

func (s *Sweeper) run(ctx context.Context, reg *registry.Registry) Report {
	if reg.Degraded() {
		return Report{Err: procerr.New(procerr.KindLockDegraded, "sweep", nil)}
	}
	if reg.Len() == 0 {
		return Report{}
	}

	table, err := s.source.Snapshot(ctx)
	if err != nil {
		s.logger.Error("process table snapshot failed, skipping sweep", logging.Fields{"err": err})
		return Report{Err: err}
	}

	// query the OS before taking the registry lock; entries inserted meanwhile count as alive
	verdicts := make(map[entryKey]bool)
	for _, e := range reg.List() {
		verdicts[keyOf(e)] = s.alive(ctx, table, e)
	}

	dead, err := reg.RemoveDead(func(e registry.Entry) bool {
		alive, ok := verdicts[keyOf(e)]
		return !ok || alive
	})
	if err != nil {
		s.logger.Error("registry unavailable, skipping sweep", logging.Fields{"err": err})
		return Report{Err: err}
	}
	if len(dead) == 0 {
		return Report{}
	}

	for _, e := range dead {
		s.logger.Info("tracked process ended", logging.Fields{"pid": e.PID, "name": e.Name, "id": e.ID})
	}

	s.wait(ctx)
	cleaned, failed := s.reclaim(dead)
	return Report{Ended: dead, Cleaned: cleaned, Failed: failed}
}

type entryKey struct {
	pid  int
	path string
}

func keyOf(e registry.Entry) entryKey {
	return entryKey{pid: e.PID, path: e.ArtifactPath}
}

// alive queries the process table for e; it must not run under the registry lock
func (s *Sweeper) alive(ctx context.Context, table Table, e registry.Entry) bool {
	ok, err := table.Alive(ctx, e.PID)
	if err != nil {
		// unknown is not proof of death
		s.logger.Warn("liveness query failed", logging.Fields{"pid": e.PID, "err": err})
		return true
	}
	if !ok {
		return false
	}
	if !s.verify {
		return true
	}

	exe, err := table.Exe(ctx, e.PID)
	if err != nil || exe == "" {
		return true
	}
	if !samePath(exe, e.ArtifactPath) {
		s.logger.Info("pid reused by another executable", logging.Fields{"pid": e.PID, "exe": exe, "artifact": e.ArtifactPath})
		return false
	}
	return true
}

// Reclaim deletes the artifacts of entries without a grace delay and reports how many were
// removed and how many could not be.
func (s *Sweeper) Reclaim(entries []registry.Entry) (cleaned, failed int) {
	return s.reclaim(entries)
}

func (s *Sweeper) reclaim(entries []registry.Entry) (cleaned, failed int) {
	for _, e := range entries {
		if err := removeArtifact(e); err != nil {
			failed++
			s.logger.Warn("artifact cleanup failed", logging.Fields{"pid": e.PID, "path": e.ArtifactPath, "err": err})
			continue
		}
		cleaned++
		s.logger.Debug("artifact removed", logging.Fields{"pid": e.PID, "path": e.ArtifactPath})
	}
	return cleaned, failed
}

func (s *Sweeper) wait(ctx context.Context) {
	if s.grace == 0 {
		return
	}
	timer := time.NewTimer(s.grace)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func removeArtifact(e registry.Entry) error {
	if e.ArtifactPath == "" {
		return nil
	}
	if err := os.Remove(e.ArtifactPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return procerr.New(procerr.KindCleanupFailed, "reclaim", err).WithPID(e.PID).WithPath(e.ArtifactPath)
	}
	return nil
}

func samePath(a, b string) bool {
	// linux reports an unlinked executable as "<path> (deleted)"
	a = strings.TrimSuffix(a, " (deleted)")
	a, b = filepath.Clean(a), filepath.Clean(b)
	if runtime.GOOS == "windows" {
		return strings.EqualFold(a, b)
	}
	if a == b {
		return true
	}
	// the OS may report the resolved path
	ra, errA := filepath.EvalSymlinks(a)
	rb, errB := filepath.EvalSymlinks(b)
	return errA == nil && errB == nil && ra == rb
}
