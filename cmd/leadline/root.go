package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "leadline",
	Short: "Lead-capture service with built-in abuse control and plan quotas",
	Long: `LeadLine captures contact-form and chat leads for your site.

Every capture endpoint sits behind token-bucket rate limiting, IP
cooldowns and per-plan usage quotas, so a noisy visitor cannot drown
the service or burn through an account's allowance.

Quick start:
  leadline serve     # Start the server

Management:
  leadline users     # Manage accounts
  leadline validate  # Validate configuration`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "leadline.yaml", "config file path")
}
