package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"

	"github.com/asset-sync/pkg/config"
)

// MySQLStore backs the cache with a single key-value table, for
// deployments that already run MySQL and want cache durability there.
type MySQLStore struct {
	db     *sql.DB
	table  string
	logger *logrus.Entry
}

// NewMySQLStore creates a MySQL-backed store and ensures its table exists.
func NewMySQLStore(cfg *config.MySQLConfig, logger *logrus.Logger) (*MySQLStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	logger.WithField("dsn", fmt.Sprintf("%s:***@tcp(%s:%d)/%s", cfg.User, cfg.Host, cfg.Port, cfg.Database)).Debug("Connecting to MySQL")

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	s := &MySQLStore{
		db:     db,
		table:  cfg.Table,
		logger: logger.WithField("component", "mysql-store"),
	}

	if err := s.ensureTable(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *MySQLStore) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			cache_key   VARCHAR(512) PRIMARY KEY,
			cache_value MEDIUMTEXT NOT NULL,
			updated_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		)`, s.table)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create cache table: %w", err)
	}
	return nil
}

// GetItem returns the value stored for key.
func (s *MySQLStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	query := fmt.Sprintf("SELECT cache_value FROM %s WHERE cache_key = ?", s.table)

	var value string
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

// SetItem writes value under key.
func (s *MySQLStore) SetItem(ctx context.Context, key, value string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (cache_key, cache_value) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE cache_value = VALUES(cache_value)`, s.table)

	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// RemoveItem deletes key.
func (s *MySQLStore) RemoveItem(ctx context.Context, key string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE cache_key = ?", s.table)

	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

// Keys lists stored keys with the given prefix.
func (s *MySQLStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	query := fmt.Sprintf("SELECT cache_key FROM %s WHERE cache_key LIKE CONCAT(?, '%%')", s.table)

	rows, err := s.db.QueryContext(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// RemoveAll deletes every listed key.
func (s *MySQLStore) RemoveAll(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if err := s.RemoveItem(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Health checks database health.
func (s *MySQLStore) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
