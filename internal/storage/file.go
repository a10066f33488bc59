package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// FileStore persists each key as one file in a directory. It is the
// default backend: no external service needed, survives restarts, and
// last-write-wins matches the single-writer access pattern.
type FileStore struct {
	dir    string
	logger *logrus.Entry
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir string, logger *logrus.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
	}
	return &FileStore{
		dir:    dir,
		logger: logger.WithField("component", "file-store"),
	}, nil
}

// fileName encodes a key into a filename-safe form. Keys carry ":"
// separators, so the raw key cannot be used as a path component.
func (f *FileStore) fileName(key string) string {
	return filepath.Join(f.dir, base64.URLEncoding.EncodeToString([]byte(key))+".json")
}

// GetItem returns the value stored for key.
func (f *FileStore) GetItem(_ context.Context, key string) (string, bool, error) {
	data, err := os.ReadFile(f.fileName(key))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return string(data), true, nil
}

// SetItem writes value under key. The write goes through a temp file
// and rename so a crash never leaves a half-written entry behind.
func (f *FileStore) SetItem(_ context.Context, key, value string) error {
	name := f.fileName(key)
	tmp := name + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := os.Rename(tmp, name); err != nil {
		return fmt.Errorf("failed to commit %s: %w", key, err)
	}
	return nil
}

// RemoveItem deletes key.
func (f *FileStore) RemoveItem(_ context.Context, key string) error {
	err := os.Remove(f.fileName(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

// Keys lists stored keys with the given prefix.
func (f *FileStore) Keys(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage directory: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		decoded, err := base64.URLEncoding.DecodeString(strings.TrimSuffix(name, ".json"))
		if err != nil {
			f.logger.WithField("file", name).Warn("Skipping unrecognized cache file")
			continue
		}
		key := string(decoded)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// RemoveAll deletes every listed key.
func (f *FileStore) RemoveAll(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if err := f.RemoveItem(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op for the file store.
func (f *FileStore) Close() error { return nil }
