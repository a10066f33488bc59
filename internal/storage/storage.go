// Package storage provides the persisted key-value medium the cache
// store writes through. Backends are interchangeable; TTL accounting
// lives above this layer, so a Store only ever sees opaque strings.
package storage

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/asset-sync/pkg/config"
)

// Store is an async key-value store holding serialized cache entries.
type Store interface {
	// GetItem returns the value for key, with ok=false on a miss.
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)
	// SetItem writes value under key, overwriting any prior value.
	SetItem(ctx context.Context, key, value string) error
	// RemoveItem deletes key. Deleting an absent key is not an error.
	RemoveItem(ctx context.Context, key string) error
	// Keys lists all stored keys beginning with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// RemoveAll deletes every listed key.
	RemoveAll(ctx context.Context, keys []string) error
	// Close releases any underlying resources.
	Close() error
}

// New creates the Store selected by the storage configuration.
func New(cfg *config.Config, logger *logrus.Logger) (Store, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(cfg.Storage.FileDir, logger)
	case "redis":
		return NewRedisStore(&cfg.Redis, logger)
	case "mysql":
		return NewMySQLStore(&cfg.MySQL, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}
