package models

import (
	"encoding/json"
	"time"
)

// CacheEntry wraps a cached value with its write time and expiry.
// An entry is valid iff now is before ExpiresAt; expired entries are
// treated as absent by readers.
type CacheEntry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Expired reports whether the entry is past its expiry at the given instant.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
