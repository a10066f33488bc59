package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/asset-sync/internal/market"
	"github.com/asset-sync/pkg/config"
)

// statusCmd prints the current market session.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current market session",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Printf("Note: .env file not loaded: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	hours, err := market.NewHours(&cfg.Market)
	if err != nil {
		return fmt.Errorf("failed to initialize market hours: %w", err)
	}

	status := hours.Status(time.Now())
	fmt.Printf("Session:    %s\n", status.Session)
	fmt.Printf("Market:     %s\n", openLabel(status.IsOpen))
	if status.NextOpen != nil {
		fmt.Printf("Next open:  %s\n", status.NextOpen.Format(time.RFC1123))
	}
	if status.NextClose != nil {
		fmt.Printf("Next close: %s\n", status.NextClose.Format(time.RFC1123))
	}
	return nil
}

func openLabel(open bool) string {
	if open {
		return "open"
	}
	return "closed"
}
