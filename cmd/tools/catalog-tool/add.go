package main

import (
	"fmt"
	"os"

	"partner-workspace/internal/models"
	"partner-workspace/pkg/registry"

	"github.com/spf13/cobra"
)

var (
	addID          string
	addName        string
	addDescription string
	addPhases      []string
	addMetrics     []string
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Append a framework to the catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := registry.LoadCatalog(catalogPath)
		if os.IsNotExist(err) {
			cat = &registry.Catalog{Version: "1.0.0"}
		} else if err != nil {
			return fmt.Errorf("failed to load catalog: %w", err)
		}

		if err := cat.Add(models.Framework{
			ID:          addID,
			Name:        addName,
			Description: addDescription,
			Phases:      addPhases,
			Metrics:     addMetrics,
		}); err != nil {
			return err
		}

		// round-trip through the schema before writing
		if err := cat.Save(catalogPath + ".tmp"); err != nil {
			return err
		}
		if _, err := registry.LoadCatalog(catalogPath + ".tmp"); err != nil {
			os.Remove(catalogPath + ".tmp")
			return err
		}
		if err := os.Rename(catalogPath+".tmp", catalogPath); err != nil {
			return fmt.Errorf("failed to replace catalog: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Added framework: %s\n", addID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringVar(&addID, "id", "", "Framework ID (e.g. lean-canvas)")
	addCmd.Flags().StringVar(&addName, "name", "", "Display name")
	addCmd.Flags().StringVar(&addDescription, "description", "", "Description")
	addCmd.Flags().StringSliceVar(&addPhases, "phase", nil, "Phase label, in order (repeatable)")
	addCmd.Flags().StringSliceVar(&addMetrics, "metric", nil, "Tracked metric label (repeatable)")
	addCmd.MarkFlagRequired("id")
	addCmd.MarkFlagRequired("name")
	addCmd.MarkFlagRequired("phase")
}
