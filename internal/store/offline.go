package store

import (
	"context"
	"time"

	"github.com/zunhub/zun/internal/model"
)

// compile-time interface check
var _ Store = (*Offline)(nil)

// Offline is the Store used when the configured backend could not be reached
// at startup. Every call fails with ErrUnavailable, which lets the ledger's
// fail-open policy take over.
type Offline struct {
	cause error
}

// NewOffline returns an Offline store remembering why the backend is down.
func NewOffline(cause error) *Offline {
	return &Offline{cause: cause}
}

func (o *Offline) err() error {
	if o.cause == nil {
		return ErrUnavailable
	}
	return &unavailableError{cause: o.cause}
}

type unavailableError struct {
	cause error
}

func (e *unavailableError) Error() string {
	return ErrUnavailable.Error() + ": " + e.cause.Error()
}

func (e *unavailableError) Is(target error) bool { return target == ErrUnavailable }

func (e *unavailableError) Unwrap() error { return e.cause }

func (o *Offline) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	return nil, o.err()
}

func (o *Offline) CreateAccount(ctx context.Context, acc *model.Account) (*model.Account, error) {
	return nil, o.err()
}

func (o *Offline) ChargeAccount(ctx context.Context, userID string, amount float64) (*model.Account, error) {
	return nil, o.err()
}

func (o *Offline) CreditAccount(ctx context.Context, userID string, amount float64) (*model.Account, error) {
	return nil, o.err()
}

func (o *Offline) ResetAccount(ctx context.Context, userID string, dueBefore, now time.Time, bonusUnit float64) (*model.Account, error) {
	return nil, o.err()
}

func (o *Offline) AppendCredential(ctx context.Context, userID, credential string, bonus float64) (*model.Account, error) {
	return nil, o.err()
}

func (o *Offline) CreateRegistration(ctx context.Context, reg *model.CredentialRegistration) error {
	return o.err()
}

func (o *Offline) UpsertRegistration(ctx context.Context, reg *model.CredentialRegistration) error {
	return o.err()
}

func (o *Offline) GetRegistration(ctx context.Context, credential string) (*model.CredentialRegistration, error) {
	return nil, o.err()
}

func (o *Offline) CreateLinkIntent(ctx context.Context, intent *model.LinkIntent) error {
	return o.err()
}

func (o *Offline) UpdateLinkIntent(ctx context.Context, intent *model.LinkIntent) error {
	return o.err()
}

func (o *Offline) GetLinkIntent(ctx context.Context, id string) (*model.LinkIntent, error) {
	return nil, o.err()
}

func (o *Offline) ListDueLinkIntents(ctx context.Context, now, createdBefore time.Time, limit int) ([]*model.LinkIntent, error) {
	return nil, o.err()
}

// Ping always fails so readiness probes report the outage.
func (o *Offline) Ping(ctx context.Context) error {
	return o.err()
}

// Close is a no-op.
func (o *Offline) Close(ctx context.Context) error {
	return nil
}
