// Package scheduler decides when the local asset snapshot gets
// refreshed. It runs a small state machine (idle, updating, backing
// off) over the fetch → normalize → cache pipeline, with linear
// backoff on failure and at most one cycle in flight at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/asset-sync/internal/cache"
	"github.com/asset-sync/internal/market"
	"github.com/asset-sync/internal/normalize"
	"github.com/asset-sync/internal/obs"
	"github.com/asset-sync/pkg/config"
	"github.com/asset-sync/pkg/models"
)

// State is the scheduler's refresh-cycle state.
type State int

const (
	StateIdle State = iota
	StateUpdating
	StateBackingOff
)

// ErrUpdateInProgress reports that a trigger collapsed into an
// already-running cycle.
var ErrUpdateInProgress = errors.New("refresh cycle already in flight")

// Fetcher is the remote collaborator the scheduler pulls from. Any
// error it returns is treated as transient and subject to retry.
type Fetcher interface {
	FetchAssetCollection(ctx context.Context) ([]models.RawAsset, error)
	FetchPrices(ctx context.Context, symbols []string) ([]models.PriceUpdate, error)
}

// ConfigPatch merges non-nil fields into the scheduling configuration.
type ConfigPatch struct {
	UpdateInterval *time.Duration
	MaxRetries     *int
	RetryDelay     *time.Duration
}

// Scheduler orchestrates periodic and lifecycle-triggered refreshes.
type Scheduler struct {
	cache   *cache.Cache
	fetcher Fetcher
	hours   market.Hours
	logger  *logrus.Entry
	metrics *obs.Metrics
	clock   Clock

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	cfg           config.SchedulerConfig
	state         State
	retryCount    int
	lastSuccess   *time.Time
	foreground    bool
	destroyed     bool
	onUpdate      func([]models.NormalizedAsset)
	onError       func(error)
	onPrices      func([]models.PriceUpdate)
	intervalTimer Timer
	retryTimer    Timer
}

// New creates a scheduler. It does nothing until Initialize is called.
func New(cfg *config.SchedulerConfig, c *cache.Cache, fetcher Fetcher, hours market.Hours, logger *logrus.Logger, metrics *obs.Metrics) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cache:   c,
		fetcher: fetcher,
		hours:   hours,
		logger:  logger.WithField("component", "scheduler"),
		metrics: metrics,
		clock:   RealClock(),
		ctx:     ctx,
		cancel:  cancel,
		cfg:     *cfg,
	}
}

// SetClock overrides the clock; call before Initialize.
func (s *Scheduler) SetClock(clock Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// OnError registers a callback invoked when a cycle exhausts its
// retries. The previously cached snapshot stays untouched either way.
func (s *Scheduler) OnError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// OnPrices registers a callback invoked after targeted price updates.
func (s *Scheduler) OnPrices(fn func([]models.PriceUpdate)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPrices = fn
}

// Initialize registers the subscriber and starts the scheduling
// lifecycle. The last successful update time is recovered from the
// cache so cadence decisions survive restarts. If the snapshot is
// already stale an immediate refresh is kicked off in the background.
func (s *Scheduler) Initialize(onUpdate func([]models.NormalizedAsset)) {
	last := s.cache.LastSuccessfulUpdate(s.ctx)

	s.mu.Lock()
	s.onUpdate = onUpdate
	s.lastSuccess = last
	s.foreground = true
	s.scheduleTickLocked()
	s.mu.Unlock()

	if last != nil {
		s.logger.WithField("last_update", last.Format(time.RFC3339)).Info("Scheduler initialized")
	} else {
		s.logger.Info("Scheduler initialized, no previous sync recorded")
	}

	if s.ShouldUpdate(last, s.clock.Now()) {
		go s.triggerCycle(s.ctx)
	}
}

// ForceUpdate triggers an immediate refresh outside the normal
// cadence. The first attempt runs on the caller's goroutine; retries,
// if needed, continue in the background. A cycle already in flight
// collapses the trigger into ErrUpdateInProgress.
func (s *Scheduler) ForceUpdate(ctx context.Context) error {
	if !s.beginCycle() {
		s.logger.Debug("Force update ignored, cycle already in flight")
		return ErrUpdateInProgress
	}
	s.attempt(ctx)
	return nil
}

// UpdateSpecificSymbols refreshes quotes for the given symbols only,
// bypassing the full collection cycle and its bookkeeping. Results are
// cached per symbol and returned directly.
func (s *Scheduler) UpdateSpecificSymbols(ctx context.Context, symbols []string) ([]models.PriceUpdate, error) {
	prices, err := s.fetcher.FetchPrices(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("failed to update symbols: %w", err)
	}

	if err := s.cache.SetPrices(ctx, prices); err != nil {
		s.logger.WithError(err).Warn("Failed to cache targeted price updates")
	}

	s.mu.Lock()
	onPrices := s.onPrices
	s.mu.Unlock()
	if onPrices != nil && len(prices) > 0 {
		onPrices(prices)
	}

	return prices, nil
}

// MarketStatus returns the current session and next transition times.
func (s *Scheduler) MarketStatus() models.MarketStatus {
	return s.hours.Status(s.clock.Now())
}

// Configure merges the patch into the scheduling configuration.
func (s *Scheduler) Configure(patch ConfigPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if patch.UpdateInterval != nil {
		s.cfg.UpdateInterval = *patch.UpdateInterval
	}
	if patch.MaxRetries != nil {
		s.cfg.MaxRetries = *patch.MaxRetries
	}
	if patch.RetryDelay != nil {
		s.cfg.RetryDelay = *patch.RetryDelay
	}
}

// EnterForeground restarts the cadence timer and refreshes immediately
// if the snapshot has gone stale while backgrounded.
func (s *Scheduler) EnterForeground() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.foreground = true
	s.scheduleTickLocked()
	last := s.lastSuccess
	s.mu.Unlock()

	s.logger.Debug("Entered foreground")
	if s.ShouldUpdate(last, s.clock.Now()) {
		go s.triggerCycle(s.ctx)
	}
}

// EnterBackground stops the cadence timer. An in-flight update is
// allowed to complete and write its result.
func (s *Scheduler) EnterBackground() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.foreground = false
	s.stopTimersLocked(false)
	s.logger.Debug("Entered background")
}

// Destroy stops all timers and releases the subscriber references.
func (s *Scheduler) Destroy() {
	s.mu.Lock()
	s.destroyed = true
	s.state = StateIdle
	s.retryCount = 0
	s.stopTimersLocked(true)
	s.onUpdate = nil
	s.onError = nil
	s.onPrices = nil
	s.mu.Unlock()

	s.cancel()
	s.logger.Info("Scheduler destroyed")
}

// State returns the current cycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastSuccessfulUpdate returns the time of the last completed cycle.
func (s *Scheduler) LastSuccessfulUpdate() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSuccess
}

// ShouldUpdate is the refresh decision policy: update when never
// synced, when over the staleness ceiling regardless of session, when
// a new trading day has begun, or aggressively while the market is
// open. This keeps data fresh during trading hours without burning
// network off-hours.
func (s *Scheduler) ShouldUpdate(last *time.Time, now time.Time) bool {
	if last == nil {
		return true
	}

	s.mu.Lock()
	staleAfter := s.cfg.StaleAfter
	marketRefresh := s.cfg.MarketRefreshAfter
	s.mu.Unlock()

	elapsed := now.Sub(*last)
	if elapsed > staleAfter {
		return true
	}

	lastLocal := last.In(s.hours.Location)
	nowLocal := now.In(s.hours.Location)
	newDay := lastLocal.Year() != nowLocal.Year() || lastLocal.YearDay() != nowLocal.YearDay()
	if newDay && nowLocal.Hour() >= s.hours.OpenHour {
		return true
	}

	if s.hours.IsOpen(now) && elapsed > marketRefresh {
		return true
	}

	return false
}

// Cycle internals

// beginCycle moves Idle → Updating; any other state collapses the
// trigger to a no-op so at most one cycle is ever in flight.
func (s *Scheduler) beginCycle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed || s.state != StateIdle {
		return false
	}
	s.state = StateUpdating
	s.retryCount = 0
	return true
}

func (s *Scheduler) triggerCycle(ctx context.Context) {
	if !s.beginCycle() {
		return
	}
	s.attempt(ctx)
}

func (s *Scheduler) attempt(ctx context.Context) {
	raws, err := s.fetcher.FetchAssetCollection(ctx)
	if err != nil {
		s.handleFailure(err)
		return
	}
	s.handleSuccess(ctx, raws)
}

func (s *Scheduler) handleSuccess(ctx context.Context, raws []models.RawAsset) {
	now := s.clock.Now()
	assets, fallbacks := normalize.Collection(raws, now)
	for i := 0; i < fallbacks; i++ {
		s.metrics.ObserveNormalizeFallback()
	}

	if err := s.cache.SetAssets(ctx, assets); err != nil {
		s.logger.WithError(err).Warn("Failed to cache refreshed assets")
	}
	if err := s.cache.SetLastSuccessfulUpdate(ctx, now); err != nil {
		s.logger.WithError(err).Warn("Failed to persist last update timestamp")
	}

	s.mu.Lock()
	s.lastSuccess = &now
	s.retryCount = 0
	s.state = StateIdle
	onUpdate := s.onUpdate
	s.mu.Unlock()

	s.metrics.ObserveRefresh("success")
	s.metrics.SetLastSuccess(now.Unix())
	s.logger.WithFields(logrus.Fields{
		"assets":    len(assets),
		"fallbacks": fallbacks,
	}).Info("Refresh cycle completed")

	if onUpdate != nil {
		onUpdate(assets)
	}
}

func (s *Scheduler) handleFailure(err error) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}

	s.retryCount++
	if s.retryCount < s.cfg.MaxRetries {
		delay := nextDelay(s.cfg.RetryDelay, s.retryCount)
		s.state = StateBackingOff
		s.retryTimer = s.clock.AfterFunc(delay, s.retryFire)
		retry := s.retryCount
		s.mu.Unlock()

		s.logger.WithError(err).WithFields(logrus.Fields{
			"retry": retry,
			"delay": delay.String(),
		}).Warn("Fetch failed, backing off")
		return
	}

	// Retries exhausted: end the cycle, keep the cached snapshot.
	attempts := s.retryCount
	s.retryCount = 0
	s.state = StateIdle
	onError := s.onError
	s.mu.Unlock()

	s.metrics.ObserveRefresh("exhausted")
	s.logger.WithError(err).WithField("attempts", attempts).Error("Refresh cycle failed, keeping cached snapshot")

	if onError != nil {
		onError(fmt.Errorf("refresh failed after %d attempts: %w", attempts, err))
	}
}

func (s *Scheduler) retryFire() {
	s.mu.Lock()
	if s.destroyed || s.state != StateBackingOff {
		s.mu.Unlock()
		return
	}
	s.state = StateUpdating
	s.mu.Unlock()

	s.metrics.ObserveRetry()
	s.attempt(s.ctx)
}

// nextDelay is the linear backoff policy: the nth failure waits n
// times the base delay.
func nextDelay(base time.Duration, failures int) time.Duration {
	return base * time.Duration(failures)
}

// Cadence timer

func (s *Scheduler) scheduleTickLocked() {
	if s.intervalTimer != nil {
		s.intervalTimer.Stop()
	}
	s.intervalTimer = s.clock.AfterFunc(s.cfg.UpdateInterval, s.tick)
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	if s.destroyed || !s.foreground {
		s.mu.Unlock()
		return
	}
	last := s.lastSuccess
	s.scheduleTickLocked()
	s.mu.Unlock()

	if s.ShouldUpdate(last, s.clock.Now()) {
		s.triggerCycle(s.ctx)
	}
}

// stopTimersLocked cancels the cadence timer, and the retry timer too
// when abandoning the whole lifecycle.
func (s *Scheduler) stopTimersLocked(includeRetry bool) {
	if s.intervalTimer != nil {
		s.intervalTimer.Stop()
		s.intervalTimer = nil
	}
	if includeRetry && s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}
