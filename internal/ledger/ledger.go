// Package ledger owns the per-user point balance: lazy account creation,
// periodic resets, metered charges and credits.
//
// Every mutation is delegated to a single conditional store operation, so
// the ledger holds no locks of its own. When the store cannot be reached the
// configured Policy decides between serving an unmetered sentinel account
// (fail-open) and surfacing ErrStoreUnavailable (fail-closed).
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zunhub/zun/internal/metrics"
	"github.com/zunhub/zun/internal/model"
	"github.com/zunhub/zun/internal/store"
)

// Ledger errors.
var (
	ErrStoreUnavailable    = errors.New("account store unavailable")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

// Policy holds the metering constants.
type Policy struct {
	// UnitCost is charged per answered request.
	UnitCost float64
	// BonusUnit is credited per linked credential, on link and on every reset.
	BonusUnit float64
	// ResetPeriod is the minimum time between two periodic resets.
	ResetPeriod time.Duration
	// FailOpen serves an unmetered account while the store is unreachable.
	FailOpen bool
	// UnlimitedBalance is the balance shown on the fail-open account.
	UnlimitedBalance float64
}

// DefaultPolicy returns the standard metering constants.
func DefaultPolicy() Policy {
	return Policy{
		UnitCost:         0.5,
		BonusUnit:        100,
		ResetPeriod:      7 * 24 * time.Hour,
		FailOpen:         true,
		UnlimitedBalance: 999,
	}
}

// Ledger applies Policy on top of an AccountStore.
type Ledger struct {
	store        store.AccountStore
	policy       Policy
	storeTimeout time.Duration
	logger       *slog.Logger
	metrics      metrics.Recorder
	now          func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithStoreTimeout bounds every store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(l *Ledger) { l.storeTimeout = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a Ledger.
func New(st store.AccountStore, policy Policy, logger *slog.Logger, recorder metrics.Recorder, opts ...Option) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}

	l := &Ledger{
		store:   st,
		policy:  policy,
		logger:  logger.With("component", "ledger"),
		metrics: recorder,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Policy returns the active policy.
func (l *Ledger) Policy() Policy {
	return l.policy
}

// GetOrCreate returns the user's account, creating a zero-balance one if
// none exists. A concurrent creator's record wins and is returned.
func (l *Ledger) GetOrCreate(ctx context.Context, userID string) (*model.Account, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	acc, err := l.store.GetAccount(ctx, userID)
	if err == nil {
		return acc, nil
	}

	if errors.Is(err, store.ErrAccountNotFound) {
		acc, err = l.store.CreateAccount(ctx, model.NewAccount(userID, l.now()))
		if err == nil {
			l.logger.Info("account created", "user_id", userID)
			return acc, nil
		}
	}

	return l.degrade(userID, "get_or_create", err)
}

// MaybeReset credits LinkedCount × BonusUnit if more than ResetPeriod has
// passed since the last reset. An overdue account receives one credit no
// matter how many periods were missed. Reports whether a reset was applied.
func (l *Ledger) MaybeReset(ctx context.Context, userID string) (bool, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	now := l.now()
	acc, err := l.store.ResetAccount(ctx, userID, now.Add(-l.policy.ResetPeriod), now, l.policy.BonusUnit)
	switch {
	case err == nil:
		l.metrics.IncReset()
		l.logger.Info("periodic reset applied",
			"user_id", userID,
			"linked", acc.LinkedCount(),
			"balance", acc.Balance,
		)
		return true, nil
	case errors.Is(err, store.ErrResetNotDue), errors.Is(err, store.ErrAccountNotFound):
		return false, nil
	}

	if _, derr := l.degrade(userID, "reset", err); derr != nil {
		return false, derr
	}
	return false, nil
}

// Charge deducts amount only if the balance covers it, and counts one
// request. Returns ErrInsufficientBalance without mutating anything otherwise.
func (l *Ledger) Charge(ctx context.Context, userID string, amount float64) (*model.Account, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	acc, err := l.store.ChargeAccount(ctx, userID, amount)
	switch {
	case err == nil:
		l.metrics.IncCharge()
		l.logger.Debug("account charged", "user_id", userID, "amount", amount, "balance", acc.Balance)
		return acc, nil
	case errors.Is(err, store.ErrInsufficientBalance), errors.Is(err, store.ErrAccountNotFound):
		l.metrics.IncInsufficient()
		return nil, ErrInsufficientBalance
	}

	return l.degrade(userID, "charge", err)
}

// Credit adds amount unconditionally, creating the account first if needed.
// Credits are never absorbed by the fail-open policy: an unreachable store
// always yields ErrStoreUnavailable.
func (l *Ledger) Credit(ctx context.Context, userID string, amount float64) (*model.Account, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	acc, err := l.store.CreditAccount(ctx, userID, amount)
	if errors.Is(err, store.ErrAccountNotFound) {
		if _, err = l.store.CreateAccount(ctx, model.NewAccount(userID, l.now())); err == nil {
			acc, err = l.store.CreditAccount(ctx, userID, amount)
		}
	}
	if err != nil {
		l.logger.Error("credit failed", "user_id", userID, "amount", amount, "error", err)
		return nil, fmt.Errorf("%w: credit: %w", ErrStoreUnavailable, err)
	}

	l.metrics.IncCredit()
	l.logger.Info("account credited", "user_id", userID, "amount", amount, "balance", acc.Balance)
	return acc, nil
}

// Sentinel returns the unmetered account served in degraded mode.
func (l *Ledger) Sentinel(userID string) *model.Account {
	now := l.now()
	acc := model.NewAccount(userID, now)
	acc.Balance = l.policy.UnlimitedBalance
	acc.Degraded = true
	return acc
}

// degrade applies the availability policy to an infrastructure error.
func (l *Ledger) degrade(userID, op string, err error) (*model.Account, error) {
	if !l.policy.FailOpen {
		l.logger.Error("store unavailable", "op", op, "user_id", userID, "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
	}

	l.metrics.IncDegraded()
	l.logger.Warn("store unavailable, serving degraded account", "op", op, "user_id", userID, "error", err)
	return l.Sentinel(userID), nil
}

func (l *Ledger) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.storeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, l.storeTimeout)
}
