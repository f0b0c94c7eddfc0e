package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dsqprocess/dsqprocess/internal/presets"
)

var versionCheck bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and optionally check for a newer release",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("dsqprocess %s\n", Version)
		if !versionCheck {
			return nil
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()
		update, err := presets.CheckForUpdate(ctx, &http.Client{Timeout: 10 * time.Second}, presets.LatestReleaseURL, Version)
		if err != nil {
			return fmt.Errorf("update check failed: %w", err)
		}
		if update == nil {
			fmt.Println("You are running the latest version")
			return nil
		}
		fmt.Printf("Version %s is available: %s\n", update.Version, update.DownloadURL)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "check GitHub for a newer release")
}
