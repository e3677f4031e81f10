package cachestore

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	val       string
	expiresAt time.Time
}

// MemCacheStore is an in-process CacheStore. Safe for concurrent use.
type MemCacheStore struct {
	lk   sync.RWMutex
	data map[string]memEntry
}

func NewMemCacheStore() *MemCacheStore {
	return &MemCacheStore{
		data: make(map[string]memEntry),
	}
}

var _ CacheStore = (*MemCacheStore)(nil)

func memCacheKey(name, key string) string {
	return name + "/" + key
}

func (s *MemCacheStore) Get(ctx context.Context, name, key string) (string, error) {
	s.lk.RLock()
	e, ok := s.data[memCacheKey(name, key)]
	s.lk.RUnlock()
	if !ok {
		return "", nil
	}
	if time.Now().After(e.expiresAt) {
		// lazy eviction on read
		s.lk.Lock()
		delete(s.data, memCacheKey(name, key))
		s.lk.Unlock()
		return "", nil
	}
	return e.val, nil
}

func (s *MemCacheStore) Set(ctx context.Context, name, key string, val string, ttl time.Duration) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.data[memCacheKey(name, key)] = memEntry{
		val:       val,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (s *MemCacheStore) Purge(ctx context.Context, name, key string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	delete(s.data, memCacheKey(name, key))
	return nil
}

func (s *MemCacheStore) PurgeExpired(ctx context.Context) error {
	now := time.Now()
	s.lk.Lock()
	defer s.lk.Unlock()
	for k, e := range s.data {
		if now.After(e.expiresAt) {
			delete(s.data, k)
		}
	}
	return nil
}

// Len returns the number of stored entries, including not-yet-swept expired
// ones. Intended for tests.
func (s *MemCacheStore) Len() int {
	s.lk.RLock()
	defer s.lk.RUnlock()
	return len(s.data)
}
