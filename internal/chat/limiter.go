package chat

import (
	"context"
	"time"

	"github.com/zunhub/zun/internal/cache"
)

// CacheLimiter adapts the Redis token bucket to RateLimiter.
type CacheLimiter struct {
	cache         *cache.Cache
	ratePerMinute int
	burst         int
}

// NewCacheLimiter creates a per-user limiter.
func NewCacheLimiter(c *cache.Cache, ratePerMinute, burst int) *CacheLimiter {
	return &CacheLimiter{cache: c, ratePerMinute: ratePerMinute, burst: burst}
}

func (l *CacheLimiter) Allow(ctx context.Context, userID string) (bool, time.Duration, error) {
	res, err := l.cache.CheckChatRateLimit(ctx, userID, l.ratePerMinute, l.burst)
	if err != nil {
		return true, 0, err
	}
	return res.Allowed, res.RetryAfter, nil
}
