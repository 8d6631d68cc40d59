package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/zunhub/zun/internal/model"
	"github.com/zunhub/zun/internal/store"
)

// CreateRegistration inserts a credential registration.
func (r *Repository) CreateRegistration(ctx context.Context, reg *model.CredentialRegistration) error {
	query := `
		INSERT INTO linked_bots (credential, owner_user_id, bot_username, display_name, registered_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		reg.Credential,
		reg.OwnerUserID,
		reg.BotUsername,
		reg.DisplayName,
		reg.RegisteredAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrRegistrationExists
		}
		return fmt.Errorf("failed to create registration: %w", err)
	}
	return nil
}

// UpsertRegistration writes a registration, replacing any existing one.
func (r *Repository) UpsertRegistration(ctx context.Context, reg *model.CredentialRegistration) error {
	query := `
		INSERT INTO linked_bots (credential, owner_user_id, bot_username, display_name, registered_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (credential) DO UPDATE
		SET owner_user_id = EXCLUDED.owner_user_id,
		    bot_username = EXCLUDED.bot_username,
		    display_name = EXCLUDED.display_name,
		    registered_at = EXCLUDED.registered_at
	`

	_, err := r.pool.Exec(ctx, query,
		reg.Credential,
		reg.OwnerUserID,
		reg.BotUsername,
		reg.DisplayName,
		reg.RegisteredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert registration: %w", err)
	}
	return nil
}

// GetRegistration retrieves a registration by credential.
func (r *Repository) GetRegistration(ctx context.Context, credential string) (*model.CredentialRegistration, error) {
	query := `
		SELECT credential, owner_user_id, bot_username, display_name, registered_at
		FROM linked_bots
		WHERE credential = $1
	`

	var reg model.CredentialRegistration
	err := r.pool.QueryRow(ctx, query, credential).Scan(
		&reg.Credential,
		&reg.OwnerUserID,
		&reg.BotUsername,
		&reg.DisplayName,
		&reg.RegisteredAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	return &reg, nil
}
