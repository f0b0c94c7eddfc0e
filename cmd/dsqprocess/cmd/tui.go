package cmd

import (
	"github.com/spf13/cobra"

	"github.com/dsqprocess/dsqprocess/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Pick and launch presets interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime()
		if err != nil {
			return err
		}
		defer rt.App.Cleanup()
		return tui.Run(rt.App)
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
