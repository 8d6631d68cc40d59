// Package testutil holds helpers shared by integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/zunhub/zun/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetSchema applies every down migration in reverse order, then every up
// migration in order.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	root, err := ProjectRoot()
	if err != nil {
		return err
	}
	dir := filepath.Join(root, "internal", "repository", "migrations")

	downs, err := filepath.Glob(filepath.Join(dir, "*.down.sql"))
	if err != nil {
		return fmt.Errorf("list down migrations: %w", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(downs)))

	ups, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("list up migrations: %w", err)
	}
	sort.Strings(ups)

	for _, path := range append(downs, ups...) {
		sql, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", filepath.Base(path), err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			direction := "up"
			if strings.HasSuffix(path, ".down.sql") {
				direction = "down"
			}
			return fmt.Errorf("apply %s migration %s: %w", direction, filepath.Base(path), err)
		}
	}

	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestAccount creates an account with the given balance.
func NewTestAccount(t testing.TB, userID string, balance float64) *model.Account {
	t.Helper()
	acc := model.NewAccount(userID, time.Now().UTC().Truncate(time.Microsecond))
	acc.Balance = balance
	return acc
}

// NewTestRegistration creates a registration owned by userID.
func NewTestRegistration(t testing.TB, credential, userID string) *model.CredentialRegistration {
	t.Helper()
	return &model.CredentialRegistration{
		Credential:   credential,
		OwnerUserID:  userID,
		BotUsername:  "test_bot",
		DisplayName:  "Test Bot",
		RegisteredAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

// UniqueCredential generates a well-formed unique credential for tests.
func UniqueCredential() string {
	return fmt.Sprintf("%d:TEST_token-%d", time.Now().UnixNano()%1_000_000_000, time.Now().UnixNano())
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
