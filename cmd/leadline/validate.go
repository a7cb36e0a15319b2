package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/leadline/leadline/config"
)

var (
	okStyle   = color.New(color.FgHiGreen, color.Bold)
	failStyle = color.New(color.FgHiRed, color.Bold)
	infoStyle = color.New(color.FgHiWhite)
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the LeadLine configuration file.

Checks:
  - YAML syntax is valid
  - Limiter rates, plan tables and storage settings are sane

Examples:
  leadline validate
  leadline validate --config /etc/leadline/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	fmt.Printf("Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		failStyle.Printf("  ✗ ")
		fmt.Println("config file exists")
		return fmt.Errorf("config file not found: %s", cfgFile)
	}
	okStyle.Printf("  ✓ ")
	fmt.Println("config file exists")

	cfg, err := config.Load(cfgFile)
	if err != nil {
		failStyle.Printf("  ✗ ")
		fmt.Println("config valid")
		return fmt.Errorf("config error: %w", err)
	}
	okStyle.Printf("  ✓ ")
	fmt.Println("config valid")

	infoStyle.Printf("\n  Listen:        %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	infoStyle.Printf("  Data dir:      %s\n", cfg.Storage.DataDir)
	infoStyle.Printf("  Quota driver:  %s (fail-%s)\n", cfg.Storage.QuotaDriver, cfg.Storage.QuotaFailMode)
	infoStyle.Printf("  Global limit:  %.0f/min burst %.0f\n", cfg.Abuse.Global.RatePerMinute, cfg.Abuse.Global.Burst)
	infoStyle.Printf("  Plans:         %d configured\n", len(cfg.Plans))
	return nil
}
