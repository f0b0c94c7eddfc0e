package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dsqprocess/dsqprocess/internal/config"
	"github.com/dsqprocess/dsqprocess/internal/lang"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and change the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		if cfg.Path != "" {
			fmt.Printf("# loaded from %s\n", cfg.Path)
		}
		fmt.Print(string(data))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write an example configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultFile
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}
		if err := os.WriteFile(path, []byte(config.ExampleConfig), 0o644); err != nil {
			return fmt.Errorf("failed to write config file: %w", err)
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

var configLanguageCmd = &cobra.Command{
	Use:   "language <name>",
	Short: "Select the interface language",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, ok := lang.Languages[args[0]]; !ok {
			return fmt.Errorf("unknown language %q, available: %v", args[0], lang.Names())
		}
		cfg.Language = args[0]
		if err := cfg.Save(""); err != nil {
			return err
		}
		fmt.Printf("Language set to %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configInitCmd, configLanguageCmd)
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
}
