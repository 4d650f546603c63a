// Package cache provides byte caches for template data and rendered artifacts.
//
// Three backends implement [Cache]:
//   - [FileCache]: JSON entry files under a directory, for CLI usage
//   - [RedisCache]: a shared Redis instance, for the HTTP server
//   - [NullCache]: stores nothing, for tests and --no-cache
//
// Keys are produced by a [Keyer] so that every backend sees the same
// key layout. [ScopedKeyer] prefixes keys for isolated namespaces.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by helpers that need to distinguish a miss
// from an empty value.
var ErrCacheMiss = errors.New("cache miss")

// Cache stores opaque byte values under string keys with an optional TTL.
// A TTL of zero means the entry never expires.
type Cache interface {
	// Get returns the value for key. The bool reports a hit; a miss is
	// not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key, replacing any previous value.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}
