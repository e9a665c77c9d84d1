package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// Service is the hot-state view cache in front of Postgres. Trade state
// snapshots are small and short-lived, so the surface stays small: write a
// snapshot, read it back, and drop it once the trade leaves the open set.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
}
