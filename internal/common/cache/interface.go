package cache

import (
	"context"
	"time"
)

// Cache defines the cache operations used by the judge service.
// Redis is the production implementation; tests run it against miniredis.
type Cache interface {
	BasicOps
	LockOps

	// Ping verifies the cache connection is alive
	Ping(ctx context.Context) error

	// Close closes the cache connection
	Close() error
}

// BasicOps defines basic key-value operations
type BasicOps interface {
	// Get returns the value for key, or "" with a nil error when the key is missing.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Del deletes one or more keys
	Del(ctx context.Context, keys ...string) error
}

// LockOps defines owner-checked distributed locks.
type LockOps interface {
	// TryLock acquires key for owner. It returns false when someone else holds it.
	TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)

	// Unlock releases key only if owner still holds it.
	Unlock(ctx context.Context, key, owner string) error
}
