package cache

import (
	"context"
	"testing"
)

func TestHashUserID_Deterministic(t *testing.T) {
	t.Parallel()

	if hashUserID("123456789") != hashUserID("123456789") {
		t.Error("Same user id should produce same hash")
	}
}

func TestHashUserID_Length(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		id   string
	}{
		{"short", "1"},
		{"typical", "123456789"},
		{"large", "9223372036854775807"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := hashUserID(tt.id); len(got) != 16 {
				t.Errorf("hashUserID(%q) length = %d, want 16", tt.id, len(got))
			}
		})
	}
}

func TestHashUserID_Different(t *testing.T) {
	t.Parallel()

	if hashUserID("1001") == hashUserID("1002") {
		t.Error("Different user ids should produce different hashes")
	}
}

func TestCheckChatRateLimit_Disabled(t *testing.T) {
	t.Parallel()

	// A zero rate never touches Redis, so a nil client is fine here.
	c := &Cache{}
	res, err := c.CheckChatRateLimit(context.Background(), "42", 0, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed || res.Remaining != 5 {
		t.Errorf("expected unlimited result, got %+v", res)
	}
}

func TestLeaseToken_Unique(t *testing.T) {
	t.Parallel()

	a, err := leaseToken()
	if err != nil {
		t.Fatalf("leaseToken failed: %v", err)
	}
	b, _ := leaseToken()
	if a == b {
		t.Error("lease tokens should differ")
	}
	if len(a) != 32 {
		t.Errorf("token length = %d, want 32", len(a))
	}
}

func TestLease_NilRelease(t *testing.T) {
	t.Parallel()

	var l *Lease
	if err := l.Release(context.Background()); err != nil {
		t.Errorf("nil lease release should be a no-op, got %v", err)
	}
}
