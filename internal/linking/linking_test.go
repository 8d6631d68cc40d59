package linking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/zunhub/zun/internal/ledger"
	"github.com/zunhub/zun/internal/metrics"
	"github.com/zunhub/zun/internal/model"
	"github.com/zunhub/zun/internal/store"
	"github.com/zunhub/zun/internal/store/memory"
)

const (
	tokenA = "7362817362:AAHfG7shdgJShs_jshdjJHDjs"
	tokenB = "1234567:BBB-ccc_ddd"
)

var testNow = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

// fakeProber resolves every credential to a fixed identity unless listed in fail.
type fakeProber struct {
	mu    sync.Mutex
	calls int
	fail  map[string]error
}

func (p *fakeProber) Probe(_ context.Context, credential string) (*BotIdentity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if err, ok := p.fail[credential]; ok {
		return nil, err
	}
	return &BotIdentity{Username: "helper_bot", DisplayName: "Helper"}, nil
}

// flakyStore fails selected writes a fixed number of times.
type flakyStore struct {
	*memory.Store
	mu           sync.Mutex
	appendFails  int
	upsertFails  int
	appendCalled int
}

var errFlaky = errors.New("write timed out")

func (f *flakyStore) AppendCredential(ctx context.Context, userID, credential string, bonus float64) (*model.Account, error) {
	f.mu.Lock()
	f.appendCalled++
	fail := f.appendFails > 0
	if fail {
		f.appendFails--
	}
	f.mu.Unlock()
	if fail {
		return nil, errFlaky
	}
	return f.Store.AppendCredential(ctx, userID, credential, bonus)
}

func (f *flakyStore) UpsertRegistration(ctx context.Context, reg *model.CredentialRegistration) error {
	f.mu.Lock()
	fail := f.upsertFails > 0
	if fail {
		f.upsertFails--
	}
	f.mu.Unlock()
	if fail {
		return errFlaky
	}
	return f.Store.UpsertRegistration(ctx, reg)
}

type busyLocker struct{}

func (busyLocker) Lock(context.Context, string) (func(), error) {
	return nil, ErrLinkInProgress
}

type fixture struct {
	svc     *Service
	store   *flakyStore
	prober  *fakeProber
	metrics *metrics.InMemoryRecorder
	now     *time.Time
}

func newFixture(t *testing.T, uniqueness Uniqueness) *fixture {
	t.Helper()

	now := testNow
	clock := func() time.Time { return now }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := metrics.NewInMemory()
	st := &flakyStore{Store: memory.New()}
	prober := &fakeProber{fail: map[string]error{}}

	l := ledger.New(st, ledger.DefaultPolicy(), logger, rec, ledger.WithClock(clock))
	svc := NewService(st, l, prober, nil, Options{Uniqueness: uniqueness, ProbeTimeout: time.Second}, logger, rec)
	svc.now = clock

	return &fixture{svc: svc, store: st, prober: prober, metrics: rec, now: &now}
}

func (f *fixture) account(t *testing.T, userID string) *model.Account {
	t.Helper()
	acc, err := f.store.GetAccount(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetAccount(%s) failed: %v", userID, err)
	}
	return acc
}

func TestParseUniqueness(t *testing.T) {
	for _, ok := range []string{"user", "global"} {
		if _, err := ParseUniqueness(ok); err != nil {
			t.Errorf("ParseUniqueness(%q) unexpected error: %v", ok, err)
		}
	}
	if _, err := ParseUniqueness("team"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestLink_MalformedMakesNoMutation(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"plain word", "abc", ErrInvalidFormat},
		{"missing secret", "12345:", ErrInvalidFormat},
		{"non numeric id", "abc:def", ErrInvalidFormat},
		{"empty", "", ErrMissingCredential},
		{"whitespace", "   ", ErrMissingCredential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, UniquenessGlobal)

			_, err := f.svc.Link(context.Background(), "u1", tt.raw)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Link(%q) error = %v, want %v", tt.raw, err, tt.wantErr)
			}
			if _, err := f.store.GetAccount(context.Background(), "u1"); !errors.Is(err, store.ErrAccountNotFound) {
				t.Errorf("malformed input must not create an account, got %v", err)
			}
			if f.prober.calls != 0 {
				t.Errorf("prober called %d times, want 0", f.prober.calls)
			}
		})
	}
}

func TestLink_AddsOneCredentialAndOneBonus(t *testing.T) {
	f := newFixture(t, UniquenessGlobal)
	ctx := context.Background()

	res, err := f.svc.Link(ctx, "u1", "  "+tokenA+"\n")
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	if res.Bonus != 100 || res.Balance != 100 || res.Handle() != "@helper_bot" {
		t.Errorf("unexpected result: %+v", res)
	}

	acc := f.account(t, "u1")
	if acc.Balance != 100 || acc.LinkedCount() != 1 || acc.LinkedCredentials[0] != tokenA {
		t.Errorf("unexpected account: %+v", acc)
	}

	reg, err := f.store.GetRegistration(ctx, tokenA)
	if err != nil {
		t.Fatalf("registration missing: %v", err)
	}
	if reg.OwnerUserID != "u1" || reg.BotUsername != "helper_bot" || reg.DisplayName != "Helper" {
		t.Errorf("unexpected registration: %+v", reg)
	}

	if due, _ := f.store.ListDueLinkIntents(ctx, testNow.Add(time.Hour), testNow.Add(time.Hour), 0); len(due) != 0 {
		t.Errorf("expected no pending intents, got %d", len(due))
	}
	if got := f.metrics.Snapshot().LinksLinked; got != 1 {
		t.Errorf("links linked = %d, want 1", got)
	}
}

func TestLink_SecondLinkStacksBonus(t *testing.T) {
	f := newFixture(t, UniquenessGlobal)
	ctx := context.Background()

	if _, err := f.svc.Link(ctx, "u1", tokenA); err != nil {
		t.Fatalf("first Link failed: %v", err)
	}
	res, err := f.svc.Link(ctx, "u1", tokenB)
	if err != nil {
		t.Fatalf("second Link failed: %v", err)
	}
	if res.Balance != 200 {
		t.Errorf("balance = %v, want 200", res.Balance)
	}
	if got := f.account(t, "u1").LinkedCredentials; len(got) != 2 || got[0] != tokenA || got[1] != tokenB {
		t.Errorf("credentials out of insertion order: %v", got)
	}
}

func TestLink_DuplicateSameUser(t *testing.T) {
	for _, mode := range []Uniqueness{UniquenessUser, UniquenessGlobal} {
		t.Run(string(mode), func(t *testing.T) {
			f := newFixture(t, mode)
			ctx := context.Background()

			if _, err := f.svc.Link(ctx, "u1", tokenA); err != nil {
				t.Fatalf("first Link failed: %v", err)
			}
			if _, err := f.svc.Link(ctx, "u1", tokenA); !errors.Is(err, ErrAlreadyLinked) {
				t.Fatalf("expected ErrAlreadyLinked, got %v", err)
			}

			acc := f.account(t, "u1")
			if acc.Balance != 100 || acc.LinkedCount() != 1 {
				t.Errorf("duplicate must not mutate: %+v", acc)
			}
		})
	}
}

func TestLink_AcrossUsers(t *testing.T) {
	tests := []struct {
		mode       Uniqueness
		wantErr    error
		wantSecond float64
	}{
		{UniquenessGlobal, ErrAlreadyLinked, 0},
		{UniquenessUser, nil, 100},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			f := newFixture(t, tt.mode)
			ctx := context.Background()

			if _, err := f.svc.Link(ctx, "u1", tokenA); err != nil {
				t.Fatalf("first Link failed: %v", err)
			}
			_, err := f.svc.Link(ctx, "u2", tokenA)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("second user Link error = %v, want %v", err, tt.wantErr)
			}
			if got := f.account(t, "u2").Balance; got != tt.wantSecond {
				t.Errorf("second user balance = %v, want %v", got, tt.wantSecond)
			}
		})
	}
}

func TestLink_ConcurrentGlobalClaimCreditsOnce(t *testing.T) {
	f := newFixture(t, UniquenessGlobal)
	users := []string{"u1", "u2", "u3", "u4", "u5"}

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			_, _ = f.svc.Link(context.Background(), userID, tokenA)
		}(u)
	}
	wg.Wait()

	var total float64
	for _, u := range users {
		total += f.account(t, u).Balance
	}
	if total != 100 {
		t.Errorf("total bonus across users = %v, want exactly 100", total)
	}
}

func TestLink_ProbeFailure(t *testing.T) {
	f := newFixture(t, UniquenessGlobal)
	cause := errors.New("Unauthorized (401)")
	f.prober.fail[tokenA] = cause

	_, err := f.svc.Link(context.Background(), "u1", tokenA)
	if !errors.Is(err, ErrInvalidCredential) || !errors.Is(err, cause) {
		t.Fatalf("expected ErrInvalidCredential wrapping cause, got %v", err)
	}

	acc := f.account(t, "u1")
	if acc.Balance != 0 || acc.LinkedCount() != 0 {
		t.Errorf("probe failure must not mutate: %+v", acc)
	}
	if !acc.CreatedAt.Equal(testNow) {
		t.Errorf("a rejected /link is still first contact, CreatedAt = %v", acc.CreatedAt)
	}
	if got := f.metrics.Snapshot().LinksInvalid; got != 1 {
		t.Errorf("links invalid = %d, want 1", got)
	}
}

func TestLink_InProgress(t *testing.T) {
	f := newFixture(t, UniquenessGlobal)
	f.svc.locker = busyLocker{}

	if _, err := f.svc.Link(context.Background(), "u1", tokenA); !errors.Is(err, ErrLinkInProgress) {
		t.Errorf("expected ErrLinkInProgress, got %v", err)
	}
	if f.prober.calls != 0 {
		t.Error("probe should not run while another link holds the lock")
	}
}

func TestLink_OfflineStore(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	offline := store.NewOffline(errors.New("no route to host"))
	l := ledger.New(offline, ledger.DefaultPolicy(), logger, nil)
	prober := &fakeProber{}
	svc := NewService(offline, l, prober, nil, Options{}, logger, nil)

	if _, err := svc.Link(context.Background(), "u1", tokenA); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
	if prober.calls != 0 {
		t.Error("probe should not run without a store")
	}
}

func TestLink_PartialFailureIsRepairedWithoutDoubleBonus(t *testing.T) {
	f := newFixture(t, UniquenessGlobal)
	f.store.appendFails = 1
	ctx := context.Background()

	_, err := f.svc.Link(ctx, "u1", tokenA)
	if !errors.Is(err, ErrLinkPending) {
		t.Fatalf("expected ErrLinkPending, got %v", err)
	}

	// The registration was claimed but the account was not credited.
	if _, err := f.store.GetRegistration(ctx, tokenA); err != nil {
		t.Fatalf("expected claimed registration: %v", err)
	}
	if got := f.account(t, "u1").Balance; got != 0 {
		t.Fatalf("balance = %v, want 0 before repair", got)
	}

	r := NewRepairer(f.svc, 2*time.Minute, 5)

	// Inside the grace period nothing is touched.
	stats, err := r.RepairPending(ctx)
	if err != nil || stats != (RepairStats{}) {
		t.Fatalf("RepairPending inside grace = %+v, %v", stats, err)
	}

	*f.now = testNow.Add(3 * time.Minute)
	stats, err = r.RepairPending(ctx)
	if err != nil {
		t.Fatalf("RepairPending failed: %v", err)
	}
	if stats.Completed != 1 {
		t.Fatalf("stats = %+v, want one completed", stats)
	}

	acc := f.account(t, "u1")
	if acc.Balance != 100 || acc.LinkedCount() != 1 {
		t.Errorf("unexpected repaired account: %+v", acc)
	}

	// A second pass finds nothing left to do.
	stats, _ = r.RepairPending(ctx)
	if stats != (RepairStats{}) {
		t.Errorf("second pass = %+v, want empty", stats)
	}
	if got := f.account(t, "u1").Balance; got != 100 {
		t.Errorf("balance after second pass = %v, want 100", got)
	}
}

func TestRepair_ReplayAfterAppendDoesNotDoubleCredit(t *testing.T) {
	f := newFixture(t, UniquenessUser)
	f.store.upsertFails = 1
	ctx := context.Background()

	if _, err := f.svc.Link(ctx, "u1", tokenA); !errors.Is(err, ErrLinkPending) {
		t.Fatalf("expected ErrLinkPending, got %v", err)
	}
	if got := f.account(t, "u1").Balance; got != 100 {
		t.Fatalf("append should have applied, balance = %v", got)
	}

	*f.now = testNow.Add(5 * time.Minute)
	stats, err := NewRepairer(f.svc, 2*time.Minute, 5).RepairPending(ctx)
	if err != nil || stats.Completed != 1 {
		t.Fatalf("RepairPending = %+v, %v", stats, err)
	}

	if got := f.account(t, "u1").Balance; got != 100 {
		t.Errorf("balance = %v, replay must not credit twice", got)
	}
	if _, err := f.store.GetRegistration(ctx, tokenA); err != nil {
		t.Errorf("registration should exist after repair: %v", err)
	}
}

func TestRepair_ExhaustsAndRejects(t *testing.T) {
	f := newFixture(t, UniquenessGlobal)
	f.store.appendFails = 100
	ctx := context.Background()

	if _, err := f.svc.Link(ctx, "u1", tokenA); !errors.Is(err, ErrLinkPending) {
		t.Fatalf("expected ErrLinkPending, got %v", err)
	}

	r := NewRepairer(f.svc, time.Minute, 3)
	var rejected int
	for i := 0; i < 10 && rejected == 0; i++ {
		// Jump past the largest backoff so every pass sees the intent as due.
		*f.now = f.now.Add(3 * time.Hour)
		stats, err := r.RepairPending(ctx)
		if err != nil {
			t.Fatalf("RepairPending failed: %v", err)
		}
		rejected += stats.Rejected
	}

	if rejected != 1 {
		t.Fatalf("expected the intent to be rejected once, got %d", rejected)
	}
	snap := f.metrics.Snapshot()
	if snap.RepairsRetried != 2 || snap.RepairsRejected != 1 {
		t.Errorf("unexpected repair metrics: %+v", snap)
	}
	if got := f.account(t, "u1").Balance; got != 0 {
		t.Errorf("balance = %v, want 0", got)
	}
}
