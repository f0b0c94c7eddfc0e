// Package orchestrator composes placement, launch, tracking and sweeping into the start, poll
// and shutdown operations the presentation layer calls.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dsqprocess/dsqprocess/internal/artifact"
	"github.com/dsqprocess/dsqprocess/internal/health"
	"github.com/dsqprocess/dsqprocess/internal/logging"
	"github.com/dsqprocess/dsqprocess/internal/procerr"
	"github.com/dsqprocess/dsqprocess/internal/registry"
	"github.com/dsqprocess/dsqprocess/internal/sweeper"
)

// Placer materializes artifacts
type Placer interface {
	Place(folder, exeName string) (artifact.Resolved, error)
	Remove(path string) error
}

// Launcher spawns artifacts
type Launcher interface {
	Launch(artifactPath string, minutes int) (int, error)
}

// Sweeper reconciles the registry with the OS
type Sweeper interface {
	Run(ctx context.Context, reg *registry.Registry) sweeper.Report
	Reclaim(entries []registry.Entry) (cleaned, failed int)
}

// Options wires an Orchestrator
type Options struct {
	Placer   Placer
	Launcher Launcher
	Sweeper  Sweeper
	Registry *registry.Registry
	Recorder Recorder
	Health   *health.Check
	Logger   *logging.Logger
}

// Orchestrator owns the registry and every artifact recorded in it
type Orchestrator struct {
	placer   Placer
	launcher Launcher
	sweeper  Sweeper
	registry *registry.Registry
	recorder Recorder
	health   *health.Check
	logger   *logging.Logger

	now   func() time.Time
	newID func() string

	shutdownOnce sync.Once
}

// Handle identifies a started process
type Handle struct {
	ID           string `json:"id"`
	PID          int    `json:"pid"`
	Name         string `json:"name"`
	ArtifactPath string `json:"artifact_path"`
}

// StartOption customizes a Start call
type StartOption func(*startConfig)

type startConfig struct {
	name string
}

// WithDisplayName overrides the name reported for the process, which defaults to the
// executable name
func WithDisplayName(name string) StartOption {
	return func(c *startConfig) {
		if name != "" {
			c.name = name
		}
	}
}

// New creates an Orchestrator. Placer, Launcher and Sweeper are required.
func New(opts Options) *Orchestrator {
	reg := opts.Registry
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	if reg == nil {
		reg = registry.New(logger)
	}
	rec := opts.Recorder
	if rec == nil {
		rec = noopRecorder{}
	}
	hc := opts.Health
	if hc == nil {
		hc = health.New(health.DefaultThresholds())
	}
	return &Orchestrator{
		placer:   opts.Placer,
		launcher: opts.Launcher,
		sweeper:  opts.Sweeper,
		registry: reg,
		recorder: rec,
		health:   hc,
		logger:   logger.Component("orchestrator"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Start places a copy of the template under folder as exeName, launches it with the auto-close
// duration and tracks it. minutes == 0 launches without auto-close.
func (o *Orchestrator) Start(folder, exeName string, minutes int, opts ...StartOption) (Handle, error) {
	cfg := startConfig{name: exeName}
	for _, opt := range opts {
		opt(&cfg)
	}

	if minutes < 0 {
		return Handle{}, o.failStart(procerr.InvalidInput("start", "duration must not be negative, got %d", minutes))
	}

	res, err := o.placer.Place(folder, exeName)
	if err != nil {
		return Handle{}, o.failStart(err)
	}
	o.recorder.ArtifactPlaced()

	id := o.newID()
	log := o.logger.WithFields(logging.Fields{"id": id, "name": cfg.name})

	pid, err := o.launcher.Launch(res.Path, minutes)
	if err != nil {
		if rmErr := o.placer.Remove(res.Path); rmErr != nil {
			o.recorder.CleanupFailed(1)
			log.Warn("could not remove artifact after failed launch", logging.Fields{"path": res.Path, "err": rmErr})
		}
		log.Error("launch failed", logging.Fields{"path": res.Path, "err": err})
		return Handle{}, o.failStart(err)
	}
	o.transition(StatePlaced, StateLaunched)

	entry := registry.Entry{
		ID:           id,
		PID:          pid,
		Name:         cfg.name,
		ArtifactPath: res.Path,
		Folder:       res.Folder,
		Minutes:      minutes,
		StartedAt:    o.now(),
	}

	displaced, err := o.registry.Insert(entry)
	if err != nil {
		// the child keeps running but will never be swept
		o.noteRegistryError(err)
		log.Warn("process started but is not tracked", logging.Fields{"pid": pid, "err": err})
	} else {
		o.transition(StateLaunched, StateTracked)
		o.settleDisplaced(entry, displaced)
		o.recorder.Tracked(o.registry.Len())
	}

	o.recorder.Launch(nil)
	o.health.RecordLaunch(nil)
	log.Info("process started", logging.Fields{"pid": pid, "path": res.Path, "minutes": minutes})

	return Handle{ID: id, PID: pid, Name: cfg.name, ArtifactPath: res.Path}, nil
}

func (o *Orchestrator) failStart(err error) error {
	o.recorder.Launch(err)
	o.health.RecordLaunch(err)
	return err
}

// settleDisplaced handles entries pushed out of the registry by a new insert. A reused pid
// means the old process is gone and its artifact can go too; a shared path means the file
// now belongs to the new entry.
func (o *Orchestrator) settleDisplaced(entry registry.Entry, displaced []registry.Entry) {
	var reclaim []registry.Entry
	for _, old := range displaced {
		if old.ArtifactPath == entry.ArtifactPath {
			o.logger.Warn("artifact replaced, previous process may still be running but is no longer tracked", logging.Fields{
				"pid": old.PID, "id": old.ID, "path": old.ArtifactPath, "replaced_by": entry.PID,
			})
			o.transition(StateTracked, StateReplaced)
			continue
		}
		o.logger.Info("pid reused, reclaiming previous artifact", logging.Fields{
			"pid": old.PID, "id": old.ID, "path": old.ArtifactPath,
		})
		reclaim = append(reclaim, old)
	}
	if len(reclaim) > 0 {
		o.reclaim(reclaim)
	}
}

// Poll runs one liveness sweep and returns the names of tracked processes that ended. A
// non-empty result means at least one impersonated game stopped.
func (o *Orchestrator) Poll(ctx context.Context) []string {
	report := o.sweeper.Run(ctx, o.registry)

	o.recorder.Sweep(report.Duration, len(report.Ended), report.Failed, report.Err)
	if report.Err != nil {
		if procerr.KindOf(report.Err) == procerr.KindLockDegraded {
			o.noteRegistryError(report.Err)
		} else {
			o.health.RecordSweepFailure(report.Err)
		}
		return nil
	}
	o.health.RecordSweepSuccess()

	if len(report.Ended) == 0 {
		return nil
	}

	for i := 0; i < report.Cleaned; i++ {
		o.transition(StateTracked, StateCleaned)
	}
	for i := 0; i < report.Failed; i++ {
		o.transition(StateTracked, StateCleanupFailed)
	}
	o.recorder.Tracked(o.registry.Len())

	return report.Names()
}

// Shutdown drains the registry and deletes every artifact, best-effort. Later calls do nothing.
// Running children are left to their own auto-close.
func (o *Orchestrator) Shutdown() {
	o.shutdownOnce.Do(func() {
		entries, err := o.registry.DrainAll()
		if err != nil {
			o.noteRegistryError(err)
			o.logger.Error("could not drain registry on shutdown", logging.Fields{"err": err})
			return
		}
		if len(entries) == 0 {
			return
		}

		cleaned, failed := o.reclaim(entries)
		o.recorder.Tracked(0)
		o.logger.Info("shutdown reclaimed artifacts", logging.Fields{"cleaned": cleaned, "failed": failed})
	})
}

func (o *Orchestrator) reclaim(entries []registry.Entry) (cleaned, failed int) {
	cleaned, failed = o.sweeper.Reclaim(entries)
	o.recorder.CleanupFailed(failed)
	for i := 0; i < cleaned; i++ {
		o.transition(StateTracked, StateCleaned)
	}
	for i := 0; i < failed; i++ {
		o.transition(StateTracked, StateCleanupFailed)
	}
	return cleaned, failed
}

// Tracked returns a copy of the tracked processes ordered by start time
func (o *Orchestrator) Tracked() []registry.Entry {
	return o.registry.List()
}

// Health returns the health check fed by this orchestrator
func (o *Orchestrator) Health() *health.Check {
	return o.health
}

// Degraded reports whether the registry has been poisoned
func (o *Orchestrator) Degraded() bool {
	return o.registry.Degraded()
}

func (o *Orchestrator) noteRegistryError(err error) {
	if procerr.KindOf(err) == procerr.KindLockDegraded {
		o.recorder.LockDegraded()
		o.health.MarkRegistryDegraded()
	}
}

func (o *Orchestrator) transition(from, to State) {
	o.recorder.Transition(from.String(), to.String())
}
