package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"partner-workspace/pkg/registry"

	"github.com/spf13/cobra"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog frameworks in selection order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := registry.LoadCatalog(catalogPath)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if listJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(cat.Frameworks())
		}
		for i, fw := range cat.Frameworks() {
			fmt.Fprintf(out, "%d. %s (%s)\n   phases: %s\n", i+1, fw.Name, fw.ID, strings.Join(fw.Phases, " > "))
			if len(fw.Metrics) > 0 {
				fmt.Fprintf(out, "   metrics: %s\n", strings.Join(fw.Metrics, ", "))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")
}
