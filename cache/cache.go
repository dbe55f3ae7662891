// Package cache defines the short-lived read cache used for backend GETs.
package cache

import (
	"context"
	"time"
)

// DefaultTTL is how long a cached response stays fresh unless configured otherwise.
const DefaultTTL = 30 * time.Second

// Cache stores opaque byte values with a per-entry time to live.
//
// Get reports a miss with ok=false and a nil error; errors are reserved for
// backend failures. DeletePrefix evicts every key starting with prefix.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error
}
