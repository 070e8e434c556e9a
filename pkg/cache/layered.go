package cache

import (
	"context"
	"time"
)

// LayeredCache fronts the Redis tier with an in-process one. Reads hit
// memory first; writes go through to Redis so other instances and restarts
// see them.
type LayeredCache struct {
	mem *MemoryCache
	rds *RedisCache
}

// NewLayeredCache creates a two-tier cache over an existing Redis tier.
func NewLayeredCache(rds *RedisCache) *LayeredCache {
	return &LayeredCache{
		mem: NewMemoryCache(),
		rds: rds,
	}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.rds.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	_ = lc.mem.Set(ctx, key, value, expiration)
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.mem.Get(ctx, key, dest); err == nil {
		return nil
	}
	if err := lc.rds.Get(ctx, key, dest); err != nil {
		return err
	}
	// Warm L1 for the next read. Expiry tracking stays with Redis.
	_ = lc.mem.Set(ctx, key, dest, 0)
	return nil
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.mem.Delete(ctx, keys...)
	return lc.rds.Delete(ctx, keys...)
}

func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	return lc.rds.Exists(ctx, keys...)
}

func (lc *LayeredCache) Close() error {
	_ = lc.mem.Close()
	return lc.rds.Close()
}
