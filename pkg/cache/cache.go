package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Service is the small cache surface the monitor needs: last-known values
// kept warm for the read API. Values are JSON round-tripped in every tier so
// a typed destination works the same against memory and Redis.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	Close() error
}

// Key joins a namespace prefix and an identifier, e.g. "snapshot:BTC".
func Key(prefix, id string) string {
	return fmt.Sprintf("%s:%s", prefix, id)
}
