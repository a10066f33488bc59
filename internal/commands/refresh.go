package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/asset-sync/internal/cache"
	"github.com/asset-sync/internal/fetch"
	"github.com/asset-sync/internal/market"
	"github.com/asset-sync/internal/scheduler"
	"github.com/asset-sync/internal/storage"
	"github.com/asset-sync/pkg/config"
	"github.com/asset-sync/pkg/logger"
)

var refreshTimeout time.Duration

// refreshCmd performs a single synchronous refresh and exits.
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch assets once and update the cache",
	Long: `Perform a one-shot refresh: fetch the asset collection from the
upstream API, normalize it, and write it through to the cache.

Examples:
  asset-sync refresh                 # Refresh with default timeout
  asset-sync refresh --timeout 30s   # Custom fetch timeout`,
	RunE: runRefresh,
}

func init() {
	rootCmd.AddCommand(refreshCmd)

	refreshCmd.Flags().DurationVarP(&refreshTimeout, "timeout", "t", 30*time.Second, "Refresh timeout")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Printf("Note: .env file not loaded: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	store, err := storage.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	cacheStore := cache.New(store, &cfg.Cache, log, nil)

	hours, err := market.NewHours(&cfg.Market)
	if err != nil {
		return fmt.Errorf("failed to initialize market hours: %w", err)
	}

	fetcher := fetch.New(&cfg.Fetcher, log)
	defer fetcher.Close()

	sched := scheduler.New(&cfg.Scheduler, cacheStore, fetcher, hours, log, nil)
	defer sched.Destroy()

	// Single attempt: a one-shot command should fail fast, not back off.
	maxRetries := 1
	sched.Configure(scheduler.ConfigPatch{MaxRetries: &maxRetries})

	failed := make(chan error, 1)
	sched.OnError(func(err error) { failed <- err })

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	if err := sched.ForceUpdate(ctx); err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}
	select {
	case err := <-failed:
		return err
	default:
	}

	assets, ok := cacheStore.Assets(ctx)
	if !ok {
		return fmt.Errorf("refresh completed but cache is empty")
	}
	fmt.Printf("Refreshed %d assets\n", len(assets))
	return nil
}
