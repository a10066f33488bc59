package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/asset-sync/internal/cache"
	"github.com/asset-sync/internal/storage"
	"github.com/asset-sync/pkg/config"
	"github.com/asset-sync/pkg/logger"
)

// cacheCmd groups cache maintenance subcommands.
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the asset cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached assets",
	RunE:  runCacheList,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached entries",
	RunE:  runCacheClear,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func openCache() (*cache.Cache, storage.Store, error) {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Printf("Note: .env file not loaded: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	store, err := storage.New(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	return cache.New(store, &cfg.Cache, log, nil), store, nil
}

func runCacheList(cmd *cobra.Command, args []string) error {
	c, store, err := openCache()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	assets, ok := c.Assets(ctx)
	if !ok || len(assets) == 0 {
		fmt.Println("Cache is empty")
		return nil
	}

	if last := c.LastSuccessfulUpdate(ctx); last != nil {
		fmt.Printf("Last update: %s\n\n", last.Format(time.RFC1123))
	}
	for _, a := range assets {
		fmt.Printf("%-12s %-10s %-30s %12.2f\n", a.ID, a.Kind, a.Name, a.TotalValue)
	}
	fmt.Printf("\n%d assets\n", len(assets))
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	c, store, err := openCache()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	fmt.Println("Cache cleared")
	return nil
}
