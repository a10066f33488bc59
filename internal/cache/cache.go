// Package cache implements the namespaced TTL cache store that keeps
// the local snapshot of a user's holdings usable offline. Values are
// JSON-serialized into a CacheEntry envelope and written through a
// storage.Store; expiry is checked on read, so a stale entry behaves
// like a miss everywhere.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/asset-sync/internal/obs"
	"github.com/asset-sync/internal/storage"
	"github.com/asset-sync/pkg/config"
	"github.com/asset-sync/pkg/models"
)

// Cache namespaces.
const (
	NamespaceAssets = "assets" // the whole collection, under collectionKey
	NamespaceAsset  = "asset"  // one record per holding id
	NamespacePrice  = "price"  // live quote per symbol
	NamespaceChart  = "chart"  // time series per symbol_timeframe
	NamespaceMeta   = "meta"   // scheduler bookkeeping
)

const (
	collectionKey = "all"
	lastUpdateKey = "last_successful_update"
)

// nonExpiringTTL backs entries that must survive until overwritten,
// such as scheduler bookkeeping.
const nonExpiringTTL = 87600 * time.Hour

// Cache is the persisted TTL cache store.
type Cache struct {
	store   storage.Store
	cfg     *config.CacheConfig
	logger  *logrus.Entry
	metrics *obs.Metrics

	// now is injectable so expiry tests can advance virtual time.
	now func() time.Time
}

// New creates a cache store over the given storage backend.
func New(store storage.Store, cfg *config.CacheConfig, logger *logrus.Logger, metrics *obs.Metrics) *Cache {
	return &Cache{
		store:   store,
		cfg:     cfg,
		logger:  logger.WithField("component", "cache"),
		metrics: metrics,
		now:     time.Now,
	}
}

// SetNowFunc overrides the clock used for expiry decisions.
func (c *Cache) SetNowFunc(now func() time.Time) {
	c.now = now
}

func (c *Cache) key(namespace, key string) string {
	return fmt.Sprintf("%s:%s:%s", c.cfg.KeyPrefix, namespace, key)
}

// Set writes value under namespace/key with the given TTL, overwriting
// any prior entry. A non-positive TTL means the entry never expires.
func (c *Cache) Set(ctx context.Context, namespace, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value %s/%s: %w", namespace, key, err)
	}

	if ttl <= 0 {
		ttl = nonExpiringTTL
	}

	now := c.now()
	entry := models.CacheEntry{
		Data:      data,
		Timestamp: now,
		ExpiresAt: now.Add(ttl),
	}

	raw, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry %s/%s: %w", namespace, key, err)
	}

	if err := c.store.SetItem(ctx, c.key(namespace, key), string(raw)); err != nil {
		return fmt.Errorf("failed to store cache entry %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Get reads namespace/key into dest. It returns false on a miss; an
// expired or corrupt entry is deleted and reported as a miss, so a
// read lazily evicts stale data.
func (c *Cache) Get(ctx context.Context, namespace, key string, dest interface{}) (bool, error) {
	storageKey := c.key(namespace, key)

	raw, ok, err := c.store.GetItem(ctx, storageKey)
	if err != nil {
		c.metrics.ObserveCacheMiss()
		return false, fmt.Errorf("failed to read cache entry %s/%s: %w", namespace, key, err)
	}
	if !ok {
		c.metrics.ObserveCacheMiss()
		return false, nil
	}

	var entry models.CacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.logger.WithError(err).WithField("key", storageKey).Warn("Removing corrupt cache entry")
		c.removeQuietly(ctx, storageKey)
		c.metrics.ObserveCacheMiss()
		return false, nil
	}

	if entry.Expired(c.now()) {
		c.removeQuietly(ctx, storageKey)
		c.metrics.ObserveCacheMiss()
		return false, nil
	}

	if err := json.Unmarshal(entry.Data, dest); err != nil {
		c.logger.WithError(err).WithField("key", storageKey).Warn("Removing undecodable cache entry")
		c.removeQuietly(ctx, storageKey)
		c.metrics.ObserveCacheMiss()
		return false, nil
	}

	c.metrics.ObserveCacheHit()
	return true, nil
}

// Remove deletes one entry.
func (c *Cache) Remove(ctx context.Context, namespace, key string) error {
	return c.store.RemoveItem(ctx, c.key(namespace, key))
}

// RemoveNamespace deletes every entry in a namespace.
func (c *Cache) RemoveNamespace(ctx context.Context, namespace string) error {
	keys, err := c.store.Keys(ctx, fmt.Sprintf("%s:%s:", c.cfg.KeyPrefix, namespace))
	if err != nil {
		return fmt.Errorf("failed to list namespace %s: %w", namespace, err)
	}
	return c.store.RemoveAll(ctx, keys)
}

// Clear deletes every entry the cache owns.
func (c *Cache) Clear(ctx context.Context) error {
	keys, err := c.store.Keys(ctx, c.cfg.KeyPrefix+":")
	if err != nil {
		return fmt.Errorf("failed to list cache keys: %w", err)
	}
	return c.store.RemoveAll(ctx, keys)
}

func (c *Cache) removeQuietly(ctx context.Context, storageKey string) {
	if err := c.store.RemoveItem(ctx, storageKey); err != nil {
		c.logger.WithError(err).WithField("key", storageKey).Warn("Failed to evict cache entry")
	}
}

// Asset collection operations

// SetAssets caches the full collection and writes through each record
// under its id, so a targeted read never rewrites the whole batch.
func (c *Cache) SetAssets(ctx context.Context, assets []models.NormalizedAsset) error {
	if err := c.Set(ctx, NamespaceAssets, collectionKey, assets, c.cfg.CollectionTTL); err != nil {
		return err
	}

	for i := range assets {
		if err := c.Set(ctx, NamespaceAsset, assets[i].ID, &assets[i], c.cfg.CollectionTTL); err != nil {
			c.logger.WithError(err).WithField("id", assets[i].ID).Warn("Failed to write through asset record")
		}
	}
	return nil
}

// Assets returns the cached collection. Storage failures degrade to a
// miss; offline-first readers fall back to an empty state, never an error.
func (c *Cache) Assets(ctx context.Context) ([]models.NormalizedAsset, bool) {
	var assets []models.NormalizedAsset
	ok, err := c.Get(ctx, NamespaceAssets, collectionKey, &assets)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to read cached assets")
		return nil, false
	}
	return assets, ok
}

// Asset returns one cached record by id, preferring the per-id entry
// and falling back to the cached collection.
func (c *Cache) Asset(ctx context.Context, id string) (models.NormalizedAsset, bool) {
	var asset models.NormalizedAsset
	ok, err := c.Get(ctx, NamespaceAsset, id, &asset)
	if err != nil {
		c.logger.WithError(err).WithField("id", id).Warn("Failed to read cached asset")
	}
	if ok {
		return asset, true
	}

	assets, ok := c.Assets(ctx)
	if !ok {
		return models.NormalizedAsset{}, false
	}
	for i := range assets {
		if assets[i].ID == id {
			return assets[i], true
		}
	}
	return models.NormalizedAsset{}, false
}

// RemoveAsset drops one holding from the per-id namespace, used when
// the user deletes it.
func (c *Cache) RemoveAsset(ctx context.Context, id string) error {
	return c.Remove(ctx, NamespaceAsset, id)
}

// Price operations

// SetPrices caches live quotes per symbol with the short price TTL.
func (c *Cache) SetPrices(ctx context.Context, prices []models.PriceUpdate) error {
	for i := range prices {
		if err := c.Set(ctx, NamespacePrice, prices[i].Symbol, &prices[i], c.cfg.PriceTTL); err != nil {
			return err
		}
	}
	return nil
}

// Price returns the cached live quote for a symbol.
func (c *Cache) Price(ctx context.Context, symbol string) (models.PriceUpdate, bool) {
	var price models.PriceUpdate
	ok, err := c.Get(ctx, NamespacePrice, symbol, &price)
	if err != nil {
		c.logger.WithError(err).WithField("symbol", symbol).Warn("Failed to read cached price")
		return models.PriceUpdate{}, false
	}
	return price, ok
}

// Chart operations

func chartKey(symbol, timeframe string) string {
	return fmt.Sprintf("%s_%s", symbol, timeframe)
}

// SetChart caches a symbol's time series with the long chart TTL.
func (c *Cache) SetChart(ctx context.Context, symbol, timeframe string, points []models.ChartPoint) error {
	return c.Set(ctx, NamespaceChart, chartKey(symbol, timeframe), points, c.cfg.ChartTTL)
}

// Chart returns a cached time series.
func (c *Cache) Chart(ctx context.Context, symbol, timeframe string) ([]models.ChartPoint, bool) {
	var points []models.ChartPoint
	ok, err := c.Get(ctx, NamespaceChart, chartKey(symbol, timeframe), &points)
	if err != nil {
		c.logger.WithError(err).WithField("symbol", symbol).Warn("Failed to read cached chart")
		return nil, false
	}
	return points, ok
}

// Scheduler bookkeeping

// SetLastSuccessfulUpdate persists the scheduler's success timestamp.
func (c *Cache) SetLastSuccessfulUpdate(ctx context.Context, t time.Time) error {
	return c.Set(ctx, NamespaceMeta, lastUpdateKey, t, 0)
}

// LastSuccessfulUpdate returns the persisted success timestamp, or nil
// if no cycle ever completed.
func (c *Cache) LastSuccessfulUpdate(ctx context.Context) *time.Time {
	var t time.Time
	ok, err := c.Get(ctx, NamespaceMeta, lastUpdateKey, &t)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to read last update timestamp")
		return nil
	}
	if !ok {
		return nil
	}
	return &t
}

// Maintenance

type sweepEntry struct {
	storageKey string
	timestamp  time.Time
	size       int64
}

// OptimizeMemory removes expired and corrupt entries, then enforces the
// byte budget by dropping the oldest chart entries beyond the retention
// window until the cache fits. Run at startup and on a periodic sweep.
func (c *Cache) OptimizeMemory(ctx context.Context) {
	keys, err := c.store.Keys(ctx, c.cfg.KeyPrefix+":")
	if err != nil {
		c.logger.WithError(err).Warn("Cache sweep failed to list keys")
		return
	}

	now := c.now()
	chartPrefix := fmt.Sprintf("%s:%s:", c.cfg.KeyPrefix, NamespaceChart)

	var totalSize int64
	var charts []sweepEntry
	evicted := 0

	for _, storageKey := range keys {
		raw, ok, err := c.store.GetItem(ctx, storageKey)
		if err != nil || !ok {
			continue
		}

		var entry models.CacheEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			// Corrupt entries count as expired.
			c.removeQuietly(ctx, storageKey)
			evicted++
			continue
		}

		if entry.Expired(now) {
			c.removeQuietly(ctx, storageKey)
			evicted++
			continue
		}

		size := int64(len(raw))
		totalSize += size

		if len(storageKey) >= len(chartPrefix) && storageKey[:len(chartPrefix)] == chartPrefix {
			charts = append(charts, sweepEntry{storageKey: storageKey, timestamp: entry.Timestamp, size: size})
		}
	}

	if totalSize > c.cfg.MaxBytes {
		sort.Slice(charts, func(i, j int) bool {
			return charts[i].timestamp.Before(charts[j].timestamp)
		})

		cutoff := now.Add(-c.cfg.ChartRetention)
		for _, chart := range charts {
			if totalSize <= c.cfg.MaxBytes {
				break
			}
			if !chart.timestamp.Before(cutoff) {
				break
			}
			c.removeQuietly(ctx, chart.storageKey)
			totalSize -= chart.size
			evicted++
		}
	}

	c.metrics.ObserveEvictions(evicted)
	c.metrics.SetCacheSize(totalSize)

	c.logger.WithFields(logrus.Fields{
		"evicted":    evicted,
		"size_bytes": totalSize,
	}).Debug("Cache sweep completed")
}
