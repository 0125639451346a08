package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leadscout/leadscout/internal/server"
)

// newServeCmd creates the 'serve' subcommand, which runs the HTTP API and
// the worker pool until interrupted.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the discovery API server and worker pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			app, err := server.Build(cmd.Context(), &cfg)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			return app.Run(cmd.Context())
		},
	}
}
