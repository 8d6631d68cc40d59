// Package store defines the persistence contract shared by every account store
// backend (MongoDB, PostgreSQL, in-memory).
//
// All balance and credential mutations are single conditional operations at the
// store level, so concurrent requests for the same user never need an
// in-process lock to stay consistent.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/zunhub/zun/internal/model"
)

// Sentinel errors returned by every Store implementation.
var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrResetNotDue          = errors.New("reset not due")
	ErrCredentialLinked     = errors.New("credential already linked to account")
	ErrRegistrationExists   = errors.New("credential registration already exists")
	ErrRegistrationNotFound = errors.New("credential registration not found")
	ErrLinkIntentNotFound   = errors.New("link intent not found")
	ErrUnavailable          = errors.New("store unavailable")
)

// AccountStore holds the users collection.
type AccountStore interface {
	// GetAccount returns ErrAccountNotFound if the user has no record.
	GetAccount(ctx context.Context, userID string) (*model.Account, error)

	// CreateAccount inserts acc unless a record already exists, and returns
	// whichever record is stored afterwards.
	CreateAccount(ctx context.Context, acc *model.Account) (*model.Account, error)

	// ChargeAccount decrements the balance by amount and increments
	// total_requests only if balance >= amount. Otherwise it returns
	// ErrInsufficientBalance and leaves the record untouched.
	ChargeAccount(ctx context.Context, userID string, amount float64) (*model.Account, error)

	// CreditAccount increments the balance unconditionally.
	CreditAccount(ctx context.Context, userID string, amount float64) (*model.Account, error)

	// ResetAccount adds len(linked_credentials) * bonusUnit and moves
	// last_reset_at to now only if last_reset_at < dueBefore. Otherwise it
	// returns ErrResetNotDue.
	ResetAccount(ctx context.Context, userID string, dueBefore, now time.Time, bonusUnit float64) (*model.Account, error)

	// AppendCredential appends credential and credits bonus in one operation,
	// unless credential is already in the set, in which case it returns
	// ErrCredentialLinked.
	AppendCredential(ctx context.Context, userID, credential string, bonus float64) (*model.Account, error)
}

// RegistrationStore holds the linked_bots collection.
type RegistrationStore interface {
	// CreateRegistration returns ErrRegistrationExists if the credential is registered.
	CreateRegistration(ctx context.Context, reg *model.CredentialRegistration) error
	UpsertRegistration(ctx context.Context, reg *model.CredentialRegistration) error
	GetRegistration(ctx context.Context, credential string) (*model.CredentialRegistration, error)
}

// LinkIntentStore holds the link_intents journal.
type LinkIntentStore interface {
	CreateLinkIntent(ctx context.Context, intent *model.LinkIntent) error
	UpdateLinkIntent(ctx context.Context, intent *model.LinkIntent) error
	GetLinkIntent(ctx context.Context, id string) (*model.LinkIntent, error)
	// ListDueLinkIntents returns pending intents created before createdBefore
	// whose next_attempt_at is not after now, oldest first.
	ListDueLinkIntents(ctx context.Context, now, createdBefore time.Time, limit int) ([]*model.LinkIntent, error)
}

// Store is the full persistence contract.
type Store interface {
	AccountStore
	RegistrationStore
	LinkIntentStore

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// IsDomainError reports whether err is one of the expected outcomes above
// rather than an infrastructure failure.
func IsDomainError(err error) bool {
	switch {
	case errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrResetNotDue),
		errors.Is(err, ErrCredentialLinked),
		errors.Is(err, ErrRegistrationExists),
		errors.Is(err, ErrRegistrationNotFound),
		errors.Is(err, ErrLinkIntentNotFound):
		return true
	}
	return false
}
