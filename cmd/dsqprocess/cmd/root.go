package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dsqprocess/dsqprocess/internal/app"
	"github.com/dsqprocess/dsqprocess/internal/config"
	"github.com/dsqprocess/dsqprocess/internal/lang"
	"github.com/dsqprocess/dsqprocess/internal/logging"
)

// Version is stamped at build time with -ldflags "-X .../cmd.Version=..."
var Version = "0.4.0"

var (
	cfgFile      string
	outputFormat string
	logLevel     string

	cfg    *config.Config
	logger *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "dsqprocess",
	Short: "Simulate game processes for Discord quests",
	Long: `dsqprocess places a small stand-in executable under the Games directory, launches it
under the requested name and removes it again once the process ends.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Close()
		}
	},
}

// Execute adds all child commands to the root command and runs it
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table or json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log_level from the config")
}

func initConfig() error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.LogLevel = logLevel
	}
	cfg = loaded

	level := logging.ParseLevel(cfg.LogLevel)
	if cfg.LogDir != "" {
		l, err := logging.NewFileLogger(cfg.LogDir, "dsqprocess", level, cfg.LogJSON)
		if err != nil {
			return err
		}
		if err := l.RotateIfNeeded(10 << 20); err != nil {
			l.Warn("log rotation failed", logging.Fields{"err": err})
		}
		logger = l
	} else {
		logger = logging.New(level, cfg.LogJSON, os.Stderr)
	}

	if cfg.Path != "" {
		logger.Debug("config loaded", logging.Fields{"path": cfg.Path})
	}
	return nil
}

// translate looks key up in the configured language; missing tables fall back to the key
func translate(key string) string {
	catalog, err := lang.Load(cfg.LangDir, cfg.Language)
	if err != nil {
		logger.Debug("translations unavailable", logging.Fields{"err": err})
	}
	return catalog.T(key)
}

// buildRuntime is swapped out in tests
var buildRuntime = func() (*app.Runtime, error) {
	rt, err := app.Build(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return rt, nil
}

// isJSONOutput returns true if JSON output is requested
func isJSONOutput() bool {
	return outputFormat == "json"
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
