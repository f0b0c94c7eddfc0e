// Package app holds the application state shared by the CLI, TUI and status API.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dsqprocess/dsqprocess/internal/artifact"
	"github.com/dsqprocess/dsqprocess/internal/config"
	"github.com/dsqprocess/dsqprocess/internal/lang"
	"github.com/dsqprocess/dsqprocess/internal/logging"
	"github.com/dsqprocess/dsqprocess/internal/orchestrator"
	"github.com/dsqprocess/dsqprocess/internal/presence"
	"github.com/dsqprocess/dsqprocess/internal/presets"
	"github.com/dsqprocess/dsqprocess/internal/procerr"
	"github.com/dsqprocess/dsqprocess/internal/registry"
)

// Orchestrator is the process monitor the app drives
type Orchestrator interface {
	Start(folder, exeName string, minutes int, opts ...orchestrator.StartOption) (orchestrator.Handle, error)
	Poll(ctx context.Context) []string
	Shutdown()
	Tracked() []registry.Entry
}

// Options wires an App
type Options struct {
	Config       *config.Config
	Orchestrator Orchestrator
	Store        *presets.Store
	Syncer       *presets.Syncer
	Presence     presence.Broadcaster
	Catalog      *lang.Catalog
	Logger       *logging.Logger
}

// App is the state behind every user-facing surface
type App struct {
	cfg      *config.Config
	orch     Orchestrator
	store    *presets.Store
	syncer   *presets.Syncer
	presence presence.Broadcaster
	catalog  *lang.Catalog
	logger   *logging.Logger
	now      func() time.Time

	mu          sync.Mutex
	presets     []presets.Preset
	status      string
	currentGame string
	lastCheck   time.Time

	cleanupOnce sync.Once
}

// New creates an App and loads the presets
func New(opts Options) *App {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	store := opts.Store
	if store == nil {
		store = presets.NewStore(cfg.PresetsDir)
	}
	pb := opts.Presence
	if pb == nil || !cfg.RichPresenceEnabled {
		pb = presence.Nop{}
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog, _ = lang.Load(cfg.LangDir, cfg.Language)
	}

	a := &App{
		cfg:      cfg,
		orch:     opts.Orchestrator,
		store:    store,
		syncer:   opts.Syncer,
		presence: pb,
		catalog:  catalog,
		logger:   logger.Component("app"),
		now:      time.Now,
	}
	a.presets = store.Load()
	return a
}

// Config returns the live configuration
func (a *App) Config() *config.Config { return a.cfg }

// Catalog returns the translation catalog
func (a *App) Catalog() *lang.Catalog { return a.catalog }

// Store returns the preset store
func (a *App) Store() *presets.Store { return a.store }

// Presets returns the loaded presets
func (a *App) Presets() []presets.Preset {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]presets.Preset(nil), a.presets...)
}

// ReloadPresets rereads the preset files
func (a *App) ReloadPresets() {
	list := a.store.Load()
	a.mu.Lock()
	a.presets = list
	a.mu.Unlock()
}

// Status returns the last status line
func (a *App) Status() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// CurrentGame returns the game shown in presence, "" when idle
func (a *App) CurrentGame() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentGame
}

// Tracked returns the processes currently monitored
func (a *App) Tracked() []registry.Entry {
	return a.orch.Tracked()
}

func (a *App) setStatus(s string) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()
}

// StartPreset starts the preset at index in the loaded list
func (a *App) StartPreset(index int) (orchestrator.Handle, error) {
	list := a.Presets()
	if index < 0 || index >= len(list) {
		err := procerr.InvalidInput("start", "preset %d does not exist", index)
		a.setStatus(a.catalog.Tf("error", map[string]string{"error": err.Error()}))
		return orchestrator.Handle{}, err
	}
	p := list[index]
	a.cfg.SelectedPreset = index
	return a.start(p.Path, p.Executable, p.Name)
}

// StartCustom starts exeName under folder; the display name comes from a preset launching the
// same executable, else the executable name without .exe
func (a *App) StartCustom(folder, exeName string) (orchestrator.Handle, error) {
	display := strings.TrimSuffix(exeName, ".exe")
	if p, ok := presets.FindByExecutable(a.Presets(), exeName); ok {
		display = p.Name
	}
	return a.start(folder, exeName, display)
}

func (a *App) start(folder, exeName, display string) (orchestrator.Handle, error) {
	if strings.TrimSpace(exeName) == "" {
		a.setStatus(a.catalog.T("error_empty"))
		return orchestrator.Handle{}, procerr.InvalidInput("start", "executable name is empty")
	}

	h, err := a.orch.Start(folder, exeName, a.cfg.DurationMinutes, orchestrator.WithDisplayName(display))
	if err != nil {
		a.setStatus(a.catalog.Tf("error", map[string]string{"error": procerr.UserMessage(err)}))
		return orchestrator.Handle{}, err
	}

	status := a.catalog.Tf("success", map[string]string{
		"name": exeName,
		"path": artifact.NormalizeFolder(artifact.CleanRoot(a.cfg.NamespaceRoot), folder),
	})
	if err := a.presence.SetActivity(display); err != nil {
		a.logger.Warn("presence update failed", logging.Fields{"err": err})
		status = a.catalog.Tf("rich_presence_error", map[string]string{"error": err.Error()})
	} else {
		a.mu.Lock()
		a.currentGame = display
		a.mu.Unlock()
	}

	a.setStatus(status)
	return h, nil
}

// CheckDeadProcesses polls the monitor at most once per poll interval. When a tracked process
// ended, presence returns to idle. It returns the names that ended.
func (a *App) CheckDeadProcesses(ctx context.Context) []string {
	a.mu.Lock()
	now := a.now()
	if !a.lastCheck.IsZero() && now.Sub(a.lastCheck) < a.cfg.PollInterval {
		a.mu.Unlock()
		return nil
	}
	a.lastCheck = now
	a.mu.Unlock()

	ended := a.orch.Poll(ctx)
	if len(ended) == 0 {
		return nil
	}

	a.logger.Info("detected ended processes", logging.Fields{"count": len(ended), "names": strings.Join(ended, ", ")})
	if err := a.presence.Reset(); err != nil {
		a.logger.Error("failed to reset presence", logging.Fields{"err": err})
	} else {
		a.mu.Lock()
		a.currentGame = ""
		a.mu.Unlock()
	}
	a.setStatus(a.catalog.Tf("process_ended", map[string]string{"names": strings.Join(ended, ", ")}))
	return ended
}

// SyncPresets updates the official presets when the published list changed
func (a *App) SyncPresets(ctx context.Context, force bool) (bool, error) {
	if a.syncer == nil {
		return false, errors.New("preset sync is not configured")
	}

	var outdated bool
	if force {
		outdated = a.syncer.ForceCheck(ctx)
	} else {
		outdated = a.syncer.Outdated(ctx)
	}
	if !outdated {
		a.setStatus(a.catalog.T("presets_up_to_date"))
		return false, nil
	}

	if err := a.syncer.Update(ctx); err != nil {
		a.setStatus(a.catalog.Tf("error", map[string]string{"error": err.Error()}))
		return false, fmt.Errorf("update presets: %w", err)
	}
	a.ReloadPresets()
	a.setStatus(a.catalog.T("presets_updated"))
	return true, nil
}

// SetLanguage switches the UI language and remembers it
func (a *App) SetLanguage(language string) error {
	a.cfg.Language = language
	return a.catalog.SetLanguage(language)
}

// Cleanup clears presence and reclaims every artifact. Later calls do nothing.
func (a *App) Cleanup() {
	a.cleanupOnce.Do(func() {
		a.logger.Info("starting app cleanup")
		if err := a.presence.Close(); err != nil {
			a.logger.Warn("presence close failed", logging.Fields{"err": err})
		}
		a.orch.Shutdown()
		a.logger.Info("app cleanup completed")
	})
}
