package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dsqprocess/dsqprocess/internal/presets"
)

var (
	presetsFilter string
	presetsForce  bool

	editName string
	editExe  string
	editPath string
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "Manage game presets",
	Long:  `Commands for listing, editing and syncing the official and custom game presets.`,
}

var presetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List official and custom presets",
	RunE:  runPresetsList,
}

var presetsAddCmd = &cobra.Command{
	Use:   "add <name> <executable> <folder>",
	Short: "Add a custom preset",
	Args:  cobra.ExactArgs(3),
	RunE:  runPresetsAdd,
}

var presetsEditCmd = &cobra.Command{
	Use:   "edit <name>",
	Short: "Change a custom preset",
	Args:  cobra.ExactArgs(1),
	RunE:  runPresetsEdit,
}

var presetsRemoveCmd = &cobra.Command{
	Use:     "rm <name>",
	Aliases: []string{"remove", "delete"},
	Short:   "Delete a custom preset",
	Args:    cobra.ExactArgs(1),
	RunE:    runPresetsRemove,
}

var presetsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Download the official presets when a newer list is published",
	RunE:  runPresetsSync,
}

func init() {
	rootCmd.AddCommand(presetsCmd)
	presetsCmd.AddCommand(presetsListCmd, presetsAddCmd, presetsEditCmd, presetsRemoveCmd, presetsSyncCmd)

	presetsListCmd.Flags().StringVarP(&presetsFilter, "filter", "f", "", "only show presets whose name or executable contains this text")
	presetsSyncCmd.Flags().BoolVar(&presetsForce, "force", false, "ignore the cached version check")

	presetsEditCmd.Flags().StringVar(&editName, "name", "", "new name")
	presetsEditCmd.Flags().StringVar(&editExe, "exe", "", "new executable")
	presetsEditCmd.Flags().StringVar(&editPath, "folder", "", "new folder")
}

func presetStore() *presets.Store {
	return presets.NewStore(cfg.PresetsDir)
}

func runPresetsList(cmd *cobra.Command, args []string) error {
	list := presets.Filter(presetStore().Load(), presetsFilter)

	if isJSONOutput() {
		return printJSON(list)
	}
	if len(list) == 0 {
		fmt.Println("No presets found")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("#", "Name", "Executable", "Folder", "Source")
	for i, p := range list {
		source := "official"
		if p.IsCustom {
			source = "custom"
		}
		table.Append(fmt.Sprint(i), p.Name, p.Executable, p.Path, source)
	}
	table.Render()
	fmt.Printf("\nTotal presets: %d\n", len(list))
	return nil
}

func runPresetsAdd(cmd *cobra.Command, args []string) error {
	p := presets.Preset{Name: args[0], Executable: args[1], Path: args[2]}
	if err := presetStore().AddCustom(p); err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", translate("preset_added_success"), p.Name)
	return nil
}

func runPresetsEdit(cmd *cobra.Command, args []string) error {
	store := presetStore()
	current, ok := findCustom(store.Load(), args[0])
	if !ok {
		return fmt.Errorf("custom preset %q: %w", args[0], presets.ErrNotFound)
	}

	updated := current
	if editName != "" {
		updated.Name = editName
	}
	if editExe != "" {
		updated.Executable = editExe
	}
	if editPath != "" {
		updated.Path = editPath
	}
	if err := store.EditCustom(current.Name, updated); err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", translate("preset_updated_success"), updated.Name)
	return nil
}

func runPresetsRemove(cmd *cobra.Command, args []string) error {
	if err := presetStore().DeleteCustom(args[0]); err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", translate("preset_deleted_success"), args[0])
	return nil
}

func runPresetsSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	syncer := presets.NewSyncer(presetStore(), presets.SyncOptions{
		URL:    cfg.PresetsURL,
		TTL:    cfg.PresetsTTL,
		Client: &http.Client{Timeout: 30 * time.Second},
		Logger: logger,
	})

	var outdated bool
	if presetsForce {
		outdated = syncer.ForceCheck(ctx)
	} else {
		outdated = syncer.Outdated(ctx)
	}
	if !outdated {
		fmt.Printf("%s (%s)\n", translate("presets_up_to_date"), syncer.Metadata().Version)
		return nil
	}

	if err := syncer.Update(ctx); err != nil {
		return fmt.Errorf("failed to update presets: %w", err)
	}
	fmt.Printf("%s (%s)\n", translate("presets_updated"), syncer.Metadata().Version)
	return nil
}

func findCustom(list []presets.Preset, name string) (presets.Preset, bool) {
	for _, p := range list {
		if p.IsCustom && p.Name == name {
			return p, true
		}
	}
	return presets.Preset{}, false
}
