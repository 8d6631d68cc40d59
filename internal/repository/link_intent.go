package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/zunhub/zun/internal/model"
	"github.com/zunhub/zun/internal/store"
)

const linkIntentColumns = `id, user_id, credential, bot_username, display_name, bonus, status,
	attempts, last_error, next_attempt_at, created_at, updated_at`

// CreateLinkIntent inserts a new link intent.
func (r *Repository) CreateLinkIntent(ctx context.Context, intent *model.LinkIntent) error {
	query := `
		INSERT INTO link_intents (` + linkIntentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.pool.Exec(ctx, query,
		intent.ID,
		intent.UserID,
		intent.Credential,
		intent.BotUsername,
		intent.DisplayName,
		intent.Bonus,
		string(intent.Status),
		intent.Attempts,
		intent.LastError,
		intent.NextAttemptAt,
		intent.CreatedAt,
		intent.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create link intent: %w", err)
	}
	return nil
}

// UpdateLinkIntent persists the mutable fields of an intent.
func (r *Repository) UpdateLinkIntent(ctx context.Context, intent *model.LinkIntent) error {
	query := `
		UPDATE link_intents
		SET status = $2, attempts = $3, last_error = $4, next_attempt_at = $5, updated_at = $6
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		intent.ID,
		string(intent.Status),
		intent.Attempts,
		intent.LastError,
		intent.NextAttemptAt,
		intent.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update link intent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrLinkIntentNotFound
	}
	return nil
}

// GetLinkIntent retrieves an intent by ID.
func (r *Repository) GetLinkIntent(ctx context.Context, id string) (*model.LinkIntent, error) {
	query := `SELECT ` + linkIntentColumns + ` FROM link_intents WHERE id = $1`

	intent, err := scanLinkIntent(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrLinkIntentNotFound
		}
		return nil, fmt.Errorf("failed to get link intent: %w", err)
	}
	return intent, nil
}

// ListDueLinkIntents returns pending intents ready for another attempt.
func (r *Repository) ListDueLinkIntents(ctx context.Context, now, createdBefore time.Time, limit int) ([]*model.LinkIntent, error) {
	query := `
		SELECT ` + linkIntentColumns + `
		FROM link_intents
		WHERE status = 'pending' AND created_at < $1 AND next_attempt_at <= $2
		ORDER BY created_at ASC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, createdBefore, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list link intents: %w", err)
	}
	defer rows.Close()

	var intents []*model.LinkIntent
	for rows.Next() {
		intent, err := scanLinkIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link intent: %w", err)
		}
		intents = append(intents, intent)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating link intents: %w", err)
	}

	return intents, nil
}

func scanLinkIntent(row pgx.Row) (*model.LinkIntent, error) {
	var intent model.LinkIntent
	var status string

	err := row.Scan(
		&intent.ID,
		&intent.UserID,
		&intent.Credential,
		&intent.BotUsername,
		&intent.DisplayName,
		&intent.Bonus,
		&status,
		&intent.Attempts,
		&intent.LastError,
		&intent.NextAttemptAt,
		&intent.CreatedAt,
		&intent.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	intent.Status = model.LinkIntentStatus(status)
	return &intent, nil
}
