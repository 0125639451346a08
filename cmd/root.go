// Package cmd defines and implements the CLI commands for the leadscout
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leadscout/leadscout/internal/config"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leadscout",
		Short: "A resilient multi-source business contact discovery engine.",
		Long: `leadscout fans a business search out across API, directory, and
search-engine sources, merges the candidates into deduplicated records,
and scores each record's contact fields for outreach confidence.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default uses LEADSCOUT_* environment variables)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSearchCmd())

	return cmd
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "command failed: %v\n", err)
		os.Exit(1)
	}
}
