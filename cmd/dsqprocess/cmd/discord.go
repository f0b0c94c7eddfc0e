package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dsqprocess/dsqprocess/internal/discord"
)

var discordCmd = &cobra.Command{
	Use:   "discord",
	Short: "Inspect and open the Discord client",
}

var discordStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether Discord is running and which channels are installed",
	RunE: func(cmd *cobra.Command, args []string) error {
		d := discord.NewDetector()
		running, err := d.Running(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to read process list: %w", err)
		}
		installed := map[discord.Variant]bool{}
		for _, v := range d.Installed() {
			installed[v] = true
		}

		if isJSONOutput() {
			names := make([]string, 0, len(installed))
			for _, v := range discord.Variants {
				if installed[v] {
					names = append(names, v.String())
				}
			}
			return printJSON(map[string]interface{}{"running": running, "installed": names})
		}

		fmt.Printf("Running: %t\n\n", running)
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Channel", "Folder", "Installed")
		for _, v := range discord.Variants {
			table.Append(v.String(), v.FolderName(), fmt.Sprint(installed[v]))
		}
		table.Render()
		return nil
	},
}

var discordOpenCmd = &cobra.Command{
	Use:   "open [stable|canary|ptb]",
	Short: "Start Discord through its updater",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v := discord.Stable
		if len(args) == 1 {
			parsed, err := discord.ParseVariant(args[0])
			if err != nil {
				return err
			}
			v = parsed
		}
		if err := discord.NewDetector().Open(v); err != nil {
			return err
		}
		fmt.Printf("Opening Discord %s\n", v)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(discordCmd)
	discordCmd.AddCommand(discordStatusCmd, discordOpenCmd)
}
