package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/dsqprocess/dsqprocess/internal/logging"
	"github.com/dsqprocess/dsqprocess/internal/shutdown"
)

var (
	startPreset  int
	startFolder  string
	startExe     string
	startMinutes int
	startMetrics bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Launch a fake game process and wait until it ends",
	Long: `Start places a copy of the stand-in executable under the Games directory and launches it.
The command keeps running until the process exits, then removes the copy.

Example:
  dsqprocess start --preset 0
  dsqprocess start --folder "Genshin Impact" --exe GenshinImpact.exe --minutes 20`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().IntVar(&startPreset, "preset", -1, "index of the preset to launch (see presets list)")
	startCmd.Flags().StringVar(&startFolder, "folder", "", "folder under Games to place the executable in")
	startCmd.Flags().StringVar(&startExe, "exe", "", "executable name to impersonate")
	startCmd.Flags().IntVar(&startMinutes, "minutes", -1, "auto-close after this many minutes, 0 disables (default from config)")
	startCmd.Flags().BoolVar(&startMetrics, "metrics", false, "print Prometheus metrics on exit")
}

func runStart(cmd *cobra.Command, args []string) error {
	if startPreset < 0 && startExe == "" {
		return fmt.Errorf("either --preset or --exe is required")
	}
	if startMinutes >= 0 {
		cfg.DurationMinutes = startMinutes
	}

	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	a := rt.App

	mgr := shutdown.New(10*time.Second, logger)
	mgr.Register("app", shutdown.Func(a.Cleanup))
	mgr.Register("metrics", func(context.Context) error {
		if startMetrics {
			return rt.Metrics.WriteText(os.Stdout)
		}
		totals, err := rt.Metrics.Totals()
		if err != nil {
			return err
		}
		logger.Debug("session totals", logging.Fields{
			"launches":         totals["dsq_launches_total"],
			"ended":            totals["dsq_processes_ended_total"],
			"cleanup_failures": totals["dsq_cleanup_failures_total"],
		})
		return nil
	})
	defer mgr.Shutdown()

	spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	spin.Suffix = " Launching..."
	spin.Start()
	if startPreset >= 0 {
		_, err = a.StartPreset(startPreset)
	} else {
		_, err = a.StartCustom(startFolder, startExe)
	}
	spin.Stop()
	fmt.Println(a.Status())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go func() {
		mgr.Wait(ctx)
		cancel()
	}()

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("stopping, tracked processes keep running", logging.Fields{"tracked": len(a.Tracked())})
			return nil
		case <-ticker.C:
			if ended := a.CheckDeadProcesses(ctx); len(ended) > 0 {
				fmt.Println(a.Status())
			}
			if len(a.Tracked()) == 0 {
				return nil
			}
		}
	}
}
