package cachestore

import (
	"context"
	"time"
)

// CacheStore is a TTL-bounded key/value store used to memoize upstream API
// lookups. Keys are namespaced by a cache name (usually the operation).
//
// Get returns "" for a miss; a read past an entry's expiry is a miss. Set
// always overwrites. TTL is the only eviction mechanism; there is no size
// bound. PurgeExpired removes only entries past their expiry, not the whole
// store, and is called once at monitor startup to bound storage growth.
type CacheStore interface {
	Get(ctx context.Context, name, key string) (string, error)
	Set(ctx context.Context, name, key string, val string, ttl time.Duration) error
	Purge(ctx context.Context, name, key string) error
	PurgeExpired(ctx context.Context) error
}
