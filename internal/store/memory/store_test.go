package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zunhub/zun/internal/model"
	"github.com/zunhub/zun/internal/store"
)

func seed(t *testing.T, s *Store, userID string, balance float64) {
	t.Helper()
	acc := model.NewAccount(userID, time.Now())
	acc.Balance = balance
	if _, err := s.CreateAccount(context.Background(), acc); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
}

func TestStore_CreateAccountKeepsExisting(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, "1", 5)

	got, err := s.CreateAccount(ctx, model.NewAccount("1", time.Now()))
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if got.Balance != 5 {
		t.Errorf("expected existing balance 5, got %v", got.Balance)
	}
}

func TestStore_ChargeAccount(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, "1", 1.0)

	acc, err := s.ChargeAccount(ctx, "1", 0.5)
	if err != nil {
		t.Fatalf("ChargeAccount failed: %v", err)
	}
	if acc.Balance != 0.5 || acc.TotalRequests != 1 {
		t.Errorf("unexpected account after charge: %+v", acc)
	}

	if _, err := s.ChargeAccount(ctx, "1", 1.0); !errors.Is(err, store.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	acc, _ = s.GetAccount(ctx, "1")
	if acc.Balance != 0.5 || acc.TotalRequests != 1 {
		t.Errorf("rejected charge mutated account: %+v", acc)
	}

	if _, err := s.ChargeAccount(ctx, "missing", 0.5); !errors.Is(err, store.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestStore_ChargeAccountConcurrent(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, "1", 5.0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ChargeAccount(ctx, "1", 0.5); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Errorf("expected 10 successful charges, got %d", succeeded)
	}
	acc, _ := s.GetAccount(ctx, "1")
	if acc.Balance != 0 {
		t.Errorf("expected balance 0, got %v", acc.Balance)
	}
}

func TestStore_ResetAccount(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()

	acc := model.NewAccount("1", now.Add(-8*24*time.Hour))
	acc.LinkedCredentials = []string{"1:a", "2:b"}
	if _, err := s.CreateAccount(ctx, acc); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	dueBefore := now.Add(-7 * 24 * time.Hour)
	got, err := s.ResetAccount(ctx, "1", dueBefore, now, 100)
	if err != nil {
		t.Fatalf("ResetAccount failed: %v", err)
	}
	if got.Balance != 200 || !got.LastResetAt.Equal(now) {
		t.Errorf("unexpected account after reset: %+v", got)
	}

	if _, err := s.ResetAccount(ctx, "1", dueBefore, now, 100); !errors.Is(err, store.ErrResetNotDue) {
		t.Errorf("expected ErrResetNotDue, got %v", err)
	}
}

func TestStore_AppendCredential(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, "1", 0)

	acc, err := s.AppendCredential(ctx, "1", "123:abc", 100)
	if err != nil {
		t.Fatalf("AppendCredential failed: %v", err)
	}
	if acc.Balance != 100 || acc.LinkedCount() != 1 {
		t.Errorf("unexpected account after append: %+v", acc)
	}

	if _, err := s.AppendCredential(ctx, "1", "123:abc", 100); !errors.Is(err, store.ErrCredentialLinked) {
		t.Fatalf("expected ErrCredentialLinked, got %v", err)
	}
	acc, _ = s.GetAccount(ctx, "1")
	if acc.Balance != 100 || acc.LinkedCount() != 1 {
		t.Errorf("duplicate append mutated account: %+v", acc)
	}
}

func TestStore_Registrations(t *testing.T) {
	ctx := context.Background()
	s := New()
	reg := &model.CredentialRegistration{Credential: "123:abc", OwnerUserID: "1", BotUsername: "zun_bot"}

	if err := s.CreateRegistration(ctx, reg); err != nil {
		t.Fatalf("CreateRegistration failed: %v", err)
	}
	if err := s.CreateRegistration(ctx, reg); !errors.Is(err, store.ErrRegistrationExists) {
		t.Errorf("expected ErrRegistrationExists, got %v", err)
	}
	if _, err := s.GetRegistration(ctx, "999:zzz"); !errors.Is(err, store.ErrRegistrationNotFound) {
		t.Errorf("expected ErrRegistrationNotFound, got %v", err)
	}

	reg.OwnerUserID = "2"
	if err := s.UpsertRegistration(ctx, reg); err != nil {
		t.Fatalf("UpsertRegistration failed: %v", err)
	}
	got, err := s.GetRegistration(ctx, "123:abc")
	if err != nil {
		t.Fatalf("GetRegistration failed: %v", err)
	}
	if got.OwnerUserID != "2" {
		t.Errorf("expected owner 2, got %s", got.OwnerUserID)
	}
}

func TestStore_ListDueLinkIntents(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()

	intents := []*model.LinkIntent{
		{ID: "a", Status: model.LinkIntentPending, CreatedAt: now.Add(-10 * time.Minute), NextAttemptAt: now.Add(-time.Minute)},
		{ID: "b", Status: model.LinkIntentPending, CreatedAt: now.Add(-20 * time.Minute), NextAttemptAt: now.Add(-time.Minute)},
		{ID: "fresh", Status: model.LinkIntentPending, CreatedAt: now, NextAttemptAt: now},
		{ID: "backoff", Status: model.LinkIntentPending, CreatedAt: now.Add(-time.Hour), NextAttemptAt: now.Add(time.Hour)},
		{ID: "done", Status: model.LinkIntentCompleted, CreatedAt: now.Add(-time.Hour)},
	}
	for _, i := range intents {
		if err := s.CreateLinkIntent(ctx, i); err != nil {
			t.Fatalf("CreateLinkIntent failed: %v", err)
		}
	}

	due, err := s.ListDueLinkIntents(ctx, now, now.Add(-2*time.Minute), 10)
	if err != nil {
		t.Fatalf("ListDueLinkIntents failed: %v", err)
	}
	if len(due) != 2 || due[0].ID != "b" || due[1].ID != "a" {
		ids := make([]string, len(due))
		for i, d := range due {
			ids[i] = d.ID
		}
		t.Errorf("expected [b a], got %v", ids)
	}
}
