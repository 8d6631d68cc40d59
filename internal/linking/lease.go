package linking

import (
	"context"
	"errors"
	"time"

	"github.com/zunhub/zun/internal/cache"
)

// Locker serializes link attempts per user.
type Locker interface {
	// Lock returns ErrLinkInProgress if another attempt holds the lock.
	Lock(ctx context.Context, userID string) (unlock func(), err error)
}

// CacheLocker implements Locker with a Redis lease.
type CacheLocker struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewCacheLocker creates a Locker whose leases expire after ttl.
func NewCacheLocker(c *cache.Cache, ttl time.Duration) *CacheLocker {
	return &CacheLocker{cache: c, ttl: ttl}
}

func (l *CacheLocker) Lock(ctx context.Context, userID string) (func(), error) {
	lease, err := l.cache.AcquireLease(ctx, "link:"+userID, l.ttl)
	if err != nil {
		if errors.Is(err, cache.ErrLeaseHeld) {
			return nil, ErrLinkInProgress
		}
		return nil, err
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = lease.Release(ctx)
	}, nil
}
