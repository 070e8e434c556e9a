package cache

import (
	"context"
	"errors"
	"time"

	"CoinSentry/internal/domain/models"
	pkgcache "CoinSentry/pkg/cache"
)

const snapshotKeyPrefix = "snapshot"

// SnapshotCache keeps the last computed snapshot per symbol for
// stale-fallback reads when the store is unreachable. Backed by the layered
// memory+redis cache so a restarted instance still serves the last value.
type SnapshotCache struct {
	c   pkgcache.Service
	ttl time.Duration
}

// NewSnapshotCache creates the cache. TTL should cover at least two polling
// intervals so a single missed cycle does not evict the fallback.
func NewSnapshotCache(c pkgcache.Service, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &SnapshotCache{c: c, ttl: ttl}
}

func (s *SnapshotCache) Set(ctx context.Context, snap *models.MetricSnapshot) error {
	if snap == nil || snap.Symbol == "" {
		return nil
	}
	return s.c.Set(ctx, pkgcache.Key(snapshotKeyPrefix, snap.Symbol), snap, s.ttl)
}

// Get returns the cached snapshot for symbol, or nil on a miss.
func (s *SnapshotCache) Get(ctx context.Context, symbol string) (*models.MetricSnapshot, error) {
	var snap models.MetricSnapshot
	err := s.c.Get(ctx, pkgcache.Key(snapshotKeyPrefix, symbol), &snap)
	if errors.Is(err, pkgcache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}
