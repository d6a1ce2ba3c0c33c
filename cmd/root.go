// Package cmd wires configuration, storage, and model adapters into the
// engine's CLI entry points.
package cmd

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "syntellix",
	Short: "Retrieval-augmented knowledge assistant engine",
	Long: `Syntellix turns ingested documents into searchable, context-enriched
chunks and answers chat messages with grounded, streamed responses citing
the tenant's permitted knowledge.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
}
