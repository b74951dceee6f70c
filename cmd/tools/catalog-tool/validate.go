package main

import (
	"fmt"

	"partner-workspace/pkg/registry"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the catalog file against its schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := registry.LoadCatalog(catalogPath)
		if err != nil {
			return fmt.Errorf("catalog validation failed: %w", err)
		}
		if len(cat.Entries) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning: catalog is empty; accepting an application will fail")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Catalog %s is valid. Found %d frameworks.\n", cat.Version, len(cat.Entries))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
