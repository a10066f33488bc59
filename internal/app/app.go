// Package app wires the sync engine together: storage, cache, fetch,
// scheduler, and the optional fan-out surfaces. Everything is built
// once here and passed by reference; there is no module-level state.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/asset-sync/internal/api"
	"github.com/asset-sync/internal/cache"
	"github.com/asset-sync/internal/fetch"
	"github.com/asset-sync/internal/history"
	"github.com/asset-sync/internal/market"
	"github.com/asset-sync/internal/messaging"
	"github.com/asset-sync/internal/obs"
	"github.com/asset-sync/internal/scheduler"
	"github.com/asset-sync/internal/storage"
	"github.com/asset-sync/pkg/config"
	"github.com/asset-sync/pkg/models"
)

// App represents the running sync engine.
type App struct {
	cfg    *config.Config
	logger *logrus.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	store      storage.Store
	cacheStore *cache.Cache
	fetcher    *fetch.Client
	sched      *scheduler.Scheduler
	metrics    *obs.Metrics
	natsClient *messaging.NATSClient
	recorder   *history.InfluxRecorder
	apiServer  *api.Server
	hub        *api.Hub

	sweepDone chan struct{}
}

// New creates a new application instance.
func New(cfg *config.Config, logger *logrus.Logger) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		cfg:       cfg,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		sweepDone: make(chan struct{}),
	}
}

// Initialize builds all components.
func (a *App) Initialize() error {
	if a.cfg.Monitoring.MetricsEnabled {
		a.metrics = obs.New()
	}

	store, err := storage.New(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.store = store

	a.cacheStore = cache.New(a.store, &a.cfg.Cache, a.logger, a.metrics)

	hours, err := market.NewHours(&a.cfg.Market)
	if err != nil {
		return fmt.Errorf("failed to initialize market hours: %w", err)
	}

	a.fetcher = fetch.New(&a.cfg.Fetcher, a.logger)
	a.sched = scheduler.New(&a.cfg.Scheduler, a.cacheStore, a.fetcher, hours, a.logger, a.metrics)

	if a.cfg.Features.MessagingEnabled {
		natsClient, err := messaging.NewNATSClient(&a.cfg.NATS, a.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		a.natsClient = natsClient
	}

	if a.cfg.Features.HistoryEnabled {
		a.recorder = history.NewInfluxRecorder(&a.cfg.InfluxDB, a.logger)
		if err := a.recorder.Health(a.ctx); err != nil {
			return fmt.Errorf("failed to connect to InfluxDB: %w", err)
		}
	}

	if a.cfg.Features.WebSocketEnabled {
		a.hub = api.NewHub(a.logger)
	}

	a.apiServer = api.NewServer(a.cfg, a.logger, a.cacheStore, a.sched, a.hub)

	return nil
}

// Start runs the engine: an initial cache sweep, the scheduler
// lifecycle, the periodic maintenance loop, and the API server.
func (a *App) Start() error {
	a.cacheStore.OptimizeMemory(a.ctx)

	a.sched.OnError(a.fanOutError)
	a.sched.OnPrices(a.fanOutPrices)
	a.sched.Initialize(a.fanOutAssets)

	a.wg.Add(1)
	go a.sweepLoop()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.apiServer.Start(); err != nil && err != http.ErrServerClosed {
			a.logger.WithError(err).Error("API server error")
		}
	}()

	return nil
}

// Stop gracefully stops the application.
func (a *App) Stop() error {
	a.logger.Info("Stopping application...")

	a.sched.Destroy()
	close(a.sweepDone)
	a.cancel()

	if a.apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := a.apiServer.Stop(ctx); err != nil {
			a.logger.WithError(err).Error("Error stopping API server")
		}
		cancel()
	}

	if a.hub != nil {
		a.hub.Close()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		a.logger.Warn("Timeout waiting for goroutines to finish")
	}

	if a.fetcher != nil {
		a.fetcher.Close()
	}
	if a.natsClient != nil {
		if err := a.natsClient.Close(); err != nil {
			a.logger.WithError(err).Error("Error closing NATS")
		}
	}
	if a.recorder != nil {
		a.recorder.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.WithError(err).Error("Error closing storage")
		}
	}

	a.logger.Info("Application stopped")
	return nil
}

// Scheduler exposes the scheduler, mainly for the CLI commands.
func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }

// Cache exposes the cache store.
func (a *App) Cache() *cache.Cache { return a.cacheStore }

// sweepLoop runs the cache maintenance routine on its interval.
func (a *App) sweepLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.Cache.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.sweepDone:
			return
		case <-ticker.C:
			a.cacheStore.OptimizeMemory(a.ctx)
		}
	}
}

// Fan-out: one subscriber callback feeding every configured surface.

func (a *App) fanOutAssets(assets []models.NormalizedAsset) {
	if a.hub != nil {
		a.hub.Broadcast(api.Event{Type: "assets.updated", Payload: assets})
	}
	if a.natsClient != nil {
		if err := a.natsClient.PublishAssets(assets); err != nil {
			a.logger.WithError(err).Warn("Failed to publish assets to NATS")
		}
	}
	if a.recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.recorder.RecordPortfolio(ctx, assets); err != nil {
			a.logger.WithError(err).Warn("Failed to record portfolio history")
		}
	}
}

func (a *App) fanOutPrices(prices []models.PriceUpdate) {
	if a.hub != nil {
		a.hub.Broadcast(api.Event{Type: "prices.updated", Payload: prices})
	}
	if a.natsClient != nil {
		if err := a.natsClient.PublishPrices(prices); err != nil {
			a.logger.WithError(err).Warn("Failed to publish prices to NATS")
		}
	}
	if a.recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.recorder.RecordPrices(ctx, prices); err != nil {
			a.logger.WithError(err).Warn("Failed to record price history")
		}
	}
}

func (a *App) fanOutError(err error) {
	if a.hub != nil {
		a.hub.Broadcast(api.Event{Type: "refresh.failed", Payload: map[string]string{"error": err.Error()}})
	}
}
