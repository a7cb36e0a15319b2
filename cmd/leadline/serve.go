package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leadline/leadline/bootstrap"
	"github.com/leadline/leadline/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lead-capture server",
	Long: `Start the LeadLine server.

The server will:
  - Load configuration from leadline.yaml (or --config)
  - Or load configuration from LEADLINE_* environment variables
  - Serve the capture endpoints behind the abuse guards
  - Meter contact and chat usage against each account's plan

Environment variables (for Docker deployments):
  LEADLINE_DATA_DIR            - Data directory for the JSON stores
  LEADLINE_SERVER_PORT         - Server port (default: 8080)
  LEADLINE_QUOTA_DRIVER        - Quota backend: json or sqlite
  LEADLINE_LOG_LEVEL           - Log level: debug, info, warn, error

Examples:
  leadline serve
  leadline serve --config /etc/leadline/config.yaml

  # Docker (env vars only):
  LEADLINE_DATA_DIR=/data leadline serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) && !config.HasEnvConfig() {
		fmt.Fprintf(os.Stderr, "no config file at %s and no LEADLINE_* environment set, using built-in defaults\n", cfgFile)
	}

	app, err := bootstrap.New(cfgFile)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	return app.Run()
}
