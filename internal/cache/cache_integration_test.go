//go:build integration

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zunhub/zun/internal/testutil"
)

func newTestCache(t *testing.T) (*Cache, context.Context) {
	t.Helper()

	url := testutil.RequireEnv(t, "REDIS_URL")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	c, err := New(ctx, url)
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	if err := testutil.FlushRedis(ctx, c.client); err != nil {
		t.Fatalf("failed to flush redis: %v", err)
	}
	return c, ctx
}

func TestAcquireLease_Exclusive(t *testing.T) {
	c, ctx := newTestCache(t)

	first, err := c.AcquireLease(ctx, "link:42", time.Minute)
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	if _, err := c.AcquireLease(ctx, "link:42", time.Minute); !errors.Is(err, ErrLeaseHeld) {
		t.Fatalf("expected ErrLeaseHeld, got %v", err)
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	second, err := c.AcquireLease(ctx, "link:42", time.Minute)
	if err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
	_ = second.Release(ctx)
}

func TestLease_ReleaseDoesNotStealNewHolder(t *testing.T) {
	c, ctx := newTestCache(t)

	stale, err := c.AcquireLease(ctx, "link:7", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	fresh, err := c.AcquireLease(ctx, "link:7", time.Minute)
	if err != nil {
		t.Fatalf("acquire after expiry failed: %v", err)
	}

	_ = stale.Release(ctx)

	if _, err := c.AcquireLease(ctx, "link:7", time.Minute); !errors.Is(err, ErrLeaseHeld) {
		t.Errorf("stale release must not drop the fresh lease, got %v", err)
	}
	_ = fresh.Release(ctx)
}

func TestCheckChatRateLimit_Burst(t *testing.T) {
	c, ctx := newTestCache(t)

	for i := 0; i < 3; i++ {
		res, err := c.CheckChatRateLimit(ctx, "99", 1, 3)
		if err != nil {
			t.Fatalf("check failed: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	res, err := c.CheckChatRateLimit(ctx, "99", 1, 3)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if res.Allowed {
		t.Error("fourth request should be limited")
	}
	if res.RetryAfter <= 0 {
		t.Errorf("expected positive RetryAfter, got %v", res.RetryAfter)
	}
}
