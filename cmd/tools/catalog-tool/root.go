package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var catalogPath string

var rootCmd = &cobra.Command{
	Use:   "catalog-tool",
	Short: "Inspect and edit the collaboration framework catalog",
	Long: `catalog-tool validates the framework catalog the workflow picks
collaboration frameworks from, lists its entries and adds new ones.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&catalogPath, "path", "p", "configs/framework-catalog.json", "Path to the catalog file")
}
