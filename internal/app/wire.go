package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/dsqprocess/dsqprocess/internal/artifact"
	"github.com/dsqprocess/dsqprocess/internal/config"
	"github.com/dsqprocess/dsqprocess/internal/health"
	"github.com/dsqprocess/dsqprocess/internal/lang"
	"github.com/dsqprocess/dsqprocess/internal/launcher"
	"github.com/dsqprocess/dsqprocess/internal/logging"
	"github.com/dsqprocess/dsqprocess/internal/metrics"
	"github.com/dsqprocess/dsqprocess/internal/orchestrator"
	"github.com/dsqprocess/dsqprocess/internal/presence"
	"github.com/dsqprocess/dsqprocess/internal/presets"
	"github.com/dsqprocess/dsqprocess/internal/registry"
	"github.com/dsqprocess/dsqprocess/internal/sweeper"
)

// Runtime is a fully wired application
type Runtime struct {
	App          *App
	Orchestrator *orchestrator.Orchestrator
	Metrics      *metrics.Collector
	Health       *health.Check
	Presence     *presence.LogBroadcaster
}

// exitHook records reaped children and warns on a nonzero exit code
func exitHook(collector *metrics.Collector, logger *logging.Logger) func(launcher.Exit) {
	return func(e launcher.Exit) {
		collector.ChildExited(e.Code, e.Duration)
		if e.Code != 0 {
			fields := logging.Fields{"pid": e.PID, "path": e.Path, "code": e.Code}
			if e.Err != nil {
				fields["err"] = e.Err
			}
			logger.Warn("child exited abnormally", fields)
		}
	}
}

// Build wires every component from cfg
func Build(cfg *config.Config, logger *logging.Logger) (*Runtime, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	placer, err := artifact.New(artifact.Options{
		Root:         cfg.NamespaceRoot,
		TemplatePath: cfg.TemplatePath,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("artifact placement: %w", err)
	}

	mode, err := sweeper.ParseMode(cfg.SweepMode)
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCollector("dsq")
	hc := health.New(health.DefaultThresholds())

	orch := orchestrator.New(orchestrator.Options{
		Placer:   placer,
		Launcher: launcher.New(launcher.Options{Logger: logger, OnExit: exitHook(collector, logger)}),
		Sweeper: sweeper.New(sweeper.Options{
			Source:           sweeper.NewSource(mode),
			Grace:            cfg.CleanupGrace,
			VerifyExecutable: cfg.VerifyExecutable,
			Logger:           logger,
		}),
		Registry: registry.New(logger),
		Recorder: collector,
		Health:   hc,
		Logger:   logger,
	})

	catalog, err := lang.Load(cfg.LangDir, cfg.Language)
	if err != nil {
		logger.Warn("translations unavailable", logging.Fields{"err": err})
	}

	store := presets.NewStore(cfg.PresetsDir)
	syncer := presets.NewSyncer(store, presets.SyncOptions{
		URL:    cfg.PresetsURL,
		TTL:    cfg.PresetsTTL,
		Client: &http.Client{Timeout: 30 * time.Second},
		Logger: logger,
	})

	pb := presence.NewLogBroadcaster(logger)

	a := New(Options{
		Config:       cfg,
		Orchestrator: orch,
		Store:        store,
		Syncer:       syncer,
		Presence:     pb,
		Catalog:      catalog,
		Logger:       logger,
	})

	return &Runtime{
		App:          a,
		Orchestrator: orch,
		Metrics:      collector,
		Health:       hc,
		Presence:     pb,
	}, nil
}
