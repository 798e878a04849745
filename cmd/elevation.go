package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wegman-software/vmap-go/internal/keywordlist"
)

var elevationCmd = &cobra.Command{
	Use:   "elevation",
	Short: "Inspect and save elevation manager state",
}

var elevationCellsCmd = &cobra.Command{
	Use:   "cells",
	Short: "List open elevation cells and directory factories in priority order",
	Args:  cobra.NoArgs,
	Run:   runElevationCells,
}

var elevationSaveCmd = &cobra.Command{
	Use:   "save <state-file>",
	Short: "Write the elevation configuration to a keyword list file",
	Long: `Write the enabled and auto-load settings, open cells and directory
factories to a keyword list file. Pass the file to --elevation-state to
restore the same configuration later.`,
	Args: cobra.ExactArgs(1),
	Run:  runElevationSave,
}

func init() {
	rootCmd.AddCommand(elevationCmd)
	elevationCmd.AddCommand(elevationCellsCmd, elevationSaveCmd)
	addElevationFlags(elevationCellsCmd)
	addElevationFlags(elevationSaveCmd)
}

func runElevationCells(cmd *cobra.Command, args []string) {
	m, err := newElevationManager()
	if err != nil {
		exitWithError("failed to set up elevation", err)
	}
	defer m.CloseAllCells()

	out := cmd.OutOrStdout()
	reg := m.Registry()

	sources := reg.Sources()
	fmt.Fprintf(out, "Open cells: %d\n", len(sources))
	for i, s := range sources {
		b := s.Bounds()
		fmt.Fprintf(out, "  %d. %s (%s) [%.4f,%.4f,%.4f,%.4f]\n", i+1, s.Filename(), s.Kind(), b.Min[0], b.Min[1], b.Max[0], b.Max[1])
	}

	factories := reg.Factories()
	fmt.Fprintf(out, "Directory factories: %d\n", len(factories))
	for i, f := range factories {
		fmt.Fprintf(out, "  %d. %s (%s)\n", i+1, f.Directory(), f.Kind())
	}

	if len(sources) > 0 {
		fmt.Fprintf(out, "Height range: %.1f to %.1f m\n", m.MinHeight(), m.MaxHeight())
	}
}

func runElevationSave(cmd *cobra.Command, args []string) {
	m, err := newElevationManager()
	if err != nil {
		exitWithError("failed to set up elevation", err)
	}
	defer m.CloseAllCells()

	kwl := keywordlist.New()
	m.SaveState(kwl, statePrefix)
	if err := kwl.WriteFile(args[0]); err != nil {
		exitWithError("failed to write elevation state", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %d keywords to %s\n", kwl.Len(), args[0])
}
