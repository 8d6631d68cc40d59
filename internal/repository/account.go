package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/zunhub/zun/internal/model"
	"github.com/zunhub/zun/internal/store"
)

const accountColumns = `user_id, balance, linked_credentials, total_requests, last_reset_at, created_at`

// GetAccount retrieves an account by user ID.
func (r *Repository) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE user_id = $1`

	acc, err := scanAccount(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acc, nil
}

// CreateAccount inserts an account if none exists and returns the stored row.
func (r *Repository) CreateAccount(ctx context.Context, acc *model.Account) (*model.Account, error) {
	query := `
		INSERT INTO users (user_id, balance, linked_credentials, total_requests, last_reset_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO NOTHING
	`

	creds := acc.LinkedCredentials
	if creds == nil {
		creds = []string{}
	}

	_, err := r.pool.Exec(ctx, query,
		acc.UserID,
		acc.Balance,
		pq.Array(creds),
		acc.TotalRequests,
		acc.LastResetAt,
		acc.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	// Either our row or the one a concurrent request inserted first.
	return r.GetAccount(ctx, acc.UserID)
}

// ChargeAccount decrements the balance only when it covers amount.
func (r *Repository) ChargeAccount(ctx context.Context, userID string, amount float64) (*model.Account, error) {
	query := `
		UPDATE users
		SET balance = balance - $2::double precision,
		    total_requests = total_requests + 1
		WHERE user_id = $1 AND balance >= $2::double precision
		RETURNING ` + accountColumns

	acc, err := scanAccount(r.pool.QueryRow(ctx, query, userID, amount))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.missOrReject(ctx, userID, store.ErrInsufficientBalance)
		}
		return nil, fmt.Errorf("failed to charge account: %w", err)
	}
	return acc, nil
}

// CreditAccount increments the balance.
func (r *Repository) CreditAccount(ctx context.Context, userID string, amount float64) (*model.Account, error) {
	query := `
		UPDATE users
		SET balance = balance + $2::double precision
		WHERE user_id = $1
		RETURNING ` + accountColumns

	acc, err := scanAccount(r.pool.QueryRow(ctx, query, userID, amount))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to credit account: %w", err)
	}
	return acc, nil
}

// ResetAccount applies the periodic credit when last_reset_at < dueBefore.
func (r *Repository) ResetAccount(ctx context.Context, userID string, dueBefore, now time.Time, bonusUnit float64) (*model.Account, error) {
	query := `
		UPDATE users
		SET balance = balance + cardinality(linked_credentials) * $2::double precision,
		    last_reset_at = $3
		WHERE user_id = $1 AND last_reset_at < $4
		RETURNING ` + accountColumns

	acc, err := scanAccount(r.pool.QueryRow(ctx, query, userID, bonusUnit, now, dueBefore))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.missOrReject(ctx, userID, store.ErrResetNotDue)
		}
		return nil, fmt.Errorf("failed to reset account: %w", err)
	}
	return acc, nil
}

// AppendCredential adds credential and the bonus unless it is already linked.
func (r *Repository) AppendCredential(ctx context.Context, userID, credential string, bonus float64) (*model.Account, error) {
	query := `
		UPDATE users
		SET linked_credentials = array_append(linked_credentials, $2::text),
		    balance = balance + $3::double precision
		WHERE user_id = $1 AND NOT ($2::text = ANY(linked_credentials))
		RETURNING ` + accountColumns

	acc, err := scanAccount(r.pool.QueryRow(ctx, query, userID, credential, bonus))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.missOrReject(ctx, userID, store.ErrCredentialLinked)
		}
		return nil, fmt.Errorf("failed to append credential: %w", err)
	}
	return acc, nil
}

// missOrReject distinguishes a missing row from a failed condition after a
// conditional UPDATE matched nothing.
func (r *Repository) missOrReject(ctx context.Context, userID string, reject error) error {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE user_id = $1)`, userID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check account: %w", err)
	}
	if !exists {
		return store.ErrAccountNotFound
	}
	return reject
}

// scanAccount scans a single row into an Account model.
func scanAccount(row pgx.Row) (*model.Account, error) {
	var acc model.Account
	var creds []string

	err := row.Scan(
		&acc.UserID,
		&acc.Balance,
		pq.Array(&creds),
		&acc.TotalRequests,
		&acc.LastResetAt,
		&acc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if creds == nil {
		creds = []string{}
	}
	acc.LinkedCredentials = creds
	return &acc, nil
}
