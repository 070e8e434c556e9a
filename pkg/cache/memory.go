package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memoryEntry struct {
	data       []byte
	expireAt   time.Time
	accessedAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return now.After(e.expireAt)
}

// MemoryCache is the in-process tier, also the sole tier when Redis is
// disabled. Entries hold marshaled JSON so Get decodes into any destination
// type, same as the Redis tier.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]*memoryEntry
	maxEntries int
	defaultTTL time.Duration
	janitor    *time.Ticker
	done       chan struct{}
}

// NewMemoryCache creates an in-process cache with a background expiry sweep.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxEntries:      1000,
		DefaultTTL:      time.Hour,
		CleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	mc := &MemoryCache{
		entries:    make(map[string]*memoryEntry),
		maxEntries: cfg.MaxEntries,
		defaultTTL: cfg.DefaultTTL,
		janitor:    time.NewTicker(cfg.CleanupInterval),
		done:       make(chan struct{}),
	}
	go mc.sweep()
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if expiration <= 0 {
		expiration = mc.defaultTTL
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	if len(mc.entries) >= mc.maxEntries {
		mc.evictOldest()
	}
	now := time.Now()
	mc.entries[key] = &memoryEntry{
		data:       data,
		expireAt:   now.Add(expiration),
		accessedAt: now,
	}
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	e, ok := mc.entries[key]
	now := time.Now()
	if !ok || e.expired(now) {
		if ok {
			delete(mc.entries, key)
		}
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	e.accessedAt = now
	data := e.data
	mc.mu.Unlock()

	return json.Unmarshal(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		delete(mc.entries, key)
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	now := time.Now()
	for _, key := range keys {
		if e, ok := mc.entries[key]; ok && !e.expired(now) {
			return true, nil
		}
	}
	return false, nil
}

// Close stops the expiry sweep.
func (mc *MemoryCache) Close() error {
	mc.janitor.Stop()
	close(mc.done)
	return nil
}

// evictOldest drops the least recently accessed entry. Caller holds mu.
func (mc *MemoryCache) evictOldest() {
	var oldestKey string
	var oldestAt time.Time
	for key, e := range mc.entries {
		if oldestKey == "" || e.accessedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = e.accessedAt
		}
	}
	if oldestKey != "" {
		delete(mc.entries, oldestKey)
	}
}

func (mc *MemoryCache) sweep() {
	for {
		select {
		case <-mc.done:
			return
		case <-mc.janitor.C:
		}
		now := time.Now()
		mc.mu.Lock()
		for key, e := range mc.entries {
			if e.expired(now) {
				delete(mc.entries, key)
			}
		}
		mc.mu.Unlock()
	}
}
