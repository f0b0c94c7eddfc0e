package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/dsqprocess/dsqprocess/internal/api"
	"github.com/dsqprocess/dsqprocess/internal/logging"
	"github.com/dsqprocess/dsqprocess/internal/shutdown"
)

var (
	serveAddr      string
	serveRateLimit float64
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitor with the local status API",
	Long: `Serve keeps the process monitor running and exposes it over HTTP:

  GET  /health            monitor health
  GET  /processes         tracked processes
  POST /processes         launch {"folder", "executable", "minutes", "name"}
  GET  /presets?q=        presets
  GET  /metrics           Prometheus metrics`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default status_addr from config, else 127.0.0.1:8787)")
	serveCmd.Flags().Float64Var(&serveRateLimit, "rate-limit", 5, "requests per second per client, 0 disables")
}

func runServe(cmd *cobra.Command, args []string) error {
	addr := serveAddr
	if addr == "" {
		addr = cfg.StatusAddr
	}
	if addr == "" {
		addr = "127.0.0.1:8787"
	}

	rt, err := buildRuntime()
	if err != nil {
		return err
	}

	srv := api.New(api.Options{
		Addr:           addr,
		Monitor:        rt.Orchestrator,
		Health:         rt.Health,
		Presets:        rt.App.Store(),
		Metrics:        rt.Metrics.Handler(),
		DefaultMinutes: cfg.DurationMinutes,
		RateLimit:      serveRateLimit,
		Logger:         logger,
	})

	mgr := shutdown.New(15*time.Second, logger)
	mgr.Register("app", shutdown.Func(rt.App.Cleanup))
	mgr.Register("api", shutdown.StopServer(srv))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	go func() {
		ticker := time.NewTicker(cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rt.App.CheckDeadProcesses(ctx)
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	go mgr.Wait(ctx)

	select {
	case err = <-errCh:
		if err != nil {
			logger.Error("status API failed", logging.Fields{"err": err})
		}
	case <-mgr.Done():
	}

	cancel()
	if serr := mgr.Shutdown(); serr != nil && err == nil {
		err = serr
	}
	return err
}
