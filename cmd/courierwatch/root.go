package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	logLevel   string
	configPath string
	schemaPath string
)

var rootCmd = &cobra.Command{
	Use:   "courierwatch",
	Short: "Courier fleet telemetry tracker",
	Long:  "courierwatch ingests courier telemetry, keeps per-courier state and breadcrumb trails, and publishes at-risk alerts every tick.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// a missing .env is fine
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	},
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
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides config")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/courierwatch.yaml", "Path to tracker configuration YAML")
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "schemas/courierwatch.cue", "Path to CUE schema file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(dashboardCmd)
}
