package commands

import (
	"github.com/spf13/cobra"
)

var (
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "asset-sync",
	Short: "Asset Data Sync Engine",
	Long: `A background sync engine for portfolio asset data.

Features:
• TTL-based asset cache with pluggable storage backends
• Periodic refresh scheduler with market-aware update policy
• Linear backoff retries with at-most-one update in flight
• Defensive normalization of upstream asset payloads
• Optional NATS fan-out, InfluxDB history, and WebSocket push`,
	Version: "1.0.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
