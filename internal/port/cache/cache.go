// Package cache defines the key-value caching port used for hot
// registry reads.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key-value cache with per-entry TTLs.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
