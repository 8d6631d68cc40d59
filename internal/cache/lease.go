package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const leaseKeyPrefix = "lease:"

// ErrLeaseHeld is returned when another holder owns the lease.
var ErrLeaseHeld = errors.New("lease held by another operation")

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// Lease is a held per-key lock. Release is safe to call more than once.
type Lease struct {
	client *redis.Client
	key    string
	token  string
}

// AcquireLease takes the named lease for ttl using SET NX PX.
// Returns ErrLeaseHeld if someone else has it.
func (c *Cache) AcquireLease(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	token, err := leaseToken()
	if err != nil {
		return nil, err
	}

	key := leaseKeyPrefix + name
	ok, err := c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease: %w", err)
	}
	if !ok {
		return nil, ErrLeaseHeld
	}

	return &Lease{client: c.client, key: key, token: token}, nil
}

// Release drops the lease if this holder still owns it.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

func leaseToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate lease token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
