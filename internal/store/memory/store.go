// Package memory implements store.Store in process memory. It backs the
// "memory" store driver and the package tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zunhub/zun/internal/model"
	"github.com/zunhub/zun/internal/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store keeps accounts, registrations and link intents in maps guarded by a
// single mutex, which makes every conditional update atomic.
type Store struct {
	mu sync.RWMutex

	accounts      map[string]*model.Account
	registrations map[string]*model.CredentialRegistration
	intents       map[string]*model.LinkIntent
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		accounts:      make(map[string]*model.Account),
		registrations: make(map[string]*model.CredentialRegistration),
		intents:       make(map[string]*model.LinkIntent),
	}
}

// ==================== Accounts ====================

func (s *Store) GetAccount(_ context.Context, userID string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[userID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return acc.Clone(), nil
}

func (s *Store) CreateAccount(_ context.Context, acc *model.Account) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.accounts[acc.UserID]; ok {
		return existing.Clone(), nil
	}
	stored := acc.Clone()
	if stored.LinkedCredentials == nil {
		stored.LinkedCredentials = []string{}
	}
	stored.Degraded = false
	s.accounts[acc.UserID] = stored
	return stored.Clone(), nil
}

func (s *Store) ChargeAccount(_ context.Context, userID string, amount float64) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[userID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	if acc.Balance < amount {
		return nil, store.ErrInsufficientBalance
	}
	acc.Balance -= amount
	acc.TotalRequests++
	return acc.Clone(), nil
}

func (s *Store) CreditAccount(_ context.Context, userID string, amount float64) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[userID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	acc.Balance += amount
	return acc.Clone(), nil
}

func (s *Store) ResetAccount(_ context.Context, userID string, dueBefore, now time.Time, bonusUnit float64) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[userID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	if !acc.LastResetAt.Before(dueBefore) {
		return nil, store.ErrResetNotDue
	}
	acc.Balance += acc.ResetCredit(bonusUnit)
	acc.LastResetAt = now
	return acc.Clone(), nil
}

func (s *Store) AppendCredential(_ context.Context, userID, credential string, bonus float64) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[userID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	if acc.HasCredential(credential) {
		return nil, store.ErrCredentialLinked
	}
	acc.LinkedCredentials = append(acc.LinkedCredentials, credential)
	acc.Balance += bonus
	return acc.Clone(), nil
}

// ==================== Registrations ====================

func (s *Store) CreateRegistration(_ context.Context, reg *model.CredentialRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.registrations[reg.Credential]; exists {
		return store.ErrRegistrationExists
	}
	r := *reg
	s.registrations[reg.Credential] = &r
	return nil
}

func (s *Store) UpsertRegistration(_ context.Context, reg *model.CredentialRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := *reg
	s.registrations[reg.Credential] = &r
	return nil
}

func (s *Store) GetRegistration(_ context.Context, credential string) (*model.CredentialRegistration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reg, ok := s.registrations[credential]
	if !ok {
		return nil, store.ErrRegistrationNotFound
	}
	r := *reg
	return &r, nil
}

// ==================== Link intents ====================

func (s *Store) CreateLinkIntent(_ context.Context, intent *model.LinkIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := *intent
	s.intents[intent.ID] = &i
	return nil
}

func (s *Store) UpdateLinkIntent(_ context.Context, intent *model.LinkIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.intents[intent.ID]; !ok {
		return store.ErrLinkIntentNotFound
	}
	i := *intent
	s.intents[intent.ID] = &i
	return nil
}

func (s *Store) GetLinkIntent(_ context.Context, id string) (*model.LinkIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	intent, ok := s.intents[id]
	if !ok {
		return nil, store.ErrLinkIntentNotFound
	}
	i := *intent
	return &i, nil
}

func (s *Store) ListDueLinkIntents(_ context.Context, now, createdBefore time.Time, limit int) ([]*model.LinkIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*model.LinkIntent
	for _, intent := range s.intents {
		if !intent.IsPending() {
			continue
		}
		if !intent.CreatedAt.Before(createdBefore) || intent.NextAttemptAt.After(now) {
			continue
		}
		i := *intent
		due = append(due, &i)
	}

	sort.Slice(due, func(a, b int) bool {
		return due[a].CreatedAt.Before(due[b].CreatedAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close(_ context.Context) error { return nil }
