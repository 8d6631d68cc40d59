// Package model defines domain entities for the application.
package model

import (
	"math"
	"slices"
	"time"
)

// Account is the per-user ledger record.
type Account struct {
	UserID            string    `json:"user_id"`
	Balance           float64   `json:"balance"`
	LinkedCredentials []string  `json:"linked_credentials"`
	TotalRequests     int64     `json:"total_requests"`
	LastResetAt       time.Time `json:"last_reset_at"`
	CreatedAt         time.Time `json:"created_at"`

	// Degraded marks the sentinel account served while the store is unreachable.
	// It is never persisted.
	Degraded bool `json:"-"`
}

// NewAccount returns a zero-balance account created at now.
func NewAccount(userID string, now time.Time) *Account {
	return &Account{
		UserID:            userID,
		Balance:           0,
		LinkedCredentials: []string{},
		LastResetAt:       now,
		CreatedAt:         now,
	}
}

// LinkedCount returns the number of linked credentials.
func (a *Account) LinkedCount() int {
	return len(a.LinkedCredentials)
}

// HasCredential reports whether credential is already linked to this account.
func (a *Account) HasCredential(credential string) bool {
	return slices.Contains(a.LinkedCredentials, credential)
}

// CanAfford reports whether the balance covers amount.
func (a *Account) CanAfford(amount float64) bool {
	return a.Balance >= amount
}

// RemainingRequests returns how many charges of unitCost the balance still covers.
func (a *Account) RemainingRequests(unitCost float64) int64 {
	if unitCost <= 0 || a.Balance <= 0 {
		return 0
	}
	return int64(math.Floor(a.Balance / unitCost))
}

// ResetDue reports whether more than period has elapsed since the last reset.
func (a *Account) ResetDue(now time.Time, period time.Duration) bool {
	return now.Sub(a.LastResetAt) > period
}

// ResetCredit is the amount a periodic reset adds for the current credential set.
func (a *Account) ResetCredit(bonusUnit float64) float64 {
	return float64(len(a.LinkedCredentials)) * bonusUnit
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.LinkedCredentials = append([]string{}, a.LinkedCredentials...)
	return &c
}
