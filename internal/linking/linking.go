// Package linking adds a secondary bot credential to a user's account.
//
// A link is journaled as a LinkIntent before its two writes (the account
// append with bonus, and the registration record) are applied. If the process
// dies between them, Repairer rolls the intent forward. Both writes are
// idempotent, so replaying an intent never grants a second bonus.
package linking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/zunhub/zun/internal/ledger"
	"github.com/zunhub/zun/internal/metrics"
	"github.com/zunhub/zun/internal/model"
	"github.com/zunhub/zun/internal/store"
)

// Linking errors.
var (
	ErrMissingCredential = errors.New("credential is required")
	ErrInvalidFormat     = errors.New("credential has an invalid format")
	ErrInvalidCredential = errors.New("credential was rejected by the platform")
	ErrAlreadyLinked     = errors.New("credential is already linked")
	ErrLinkInProgress    = errors.New("another link for this user is in progress")
	ErrLinkPending       = errors.New("link recorded but not yet applied")
	ErrUnavailable       = errors.New("linking is unavailable while the store is offline")
)

// Uniqueness is the scope in which a credential may be linked once.
type Uniqueness string

// Uniqueness modes.
const (
	// UniquenessUser rejects a credential only if this user already linked it.
	UniquenessUser Uniqueness = "user"
	// UniquenessGlobal rejects a credential linked by anyone.
	UniquenessGlobal Uniqueness = "global"
)

// ParseUniqueness validates a configured uniqueness mode.
func ParseUniqueness(s string) (Uniqueness, error) {
	switch u := Uniqueness(s); u {
	case UniquenessUser, UniquenessGlobal:
		return u, nil
	}
	return "", fmt.Errorf("unknown link uniqueness %q", s)
}

// Result describes a completed link.
type Result struct {
	BotUsername string
	DisplayName string
	Bonus       float64
	Balance     float64
}

// Handle returns the @username of the linked bot.
func (r *Result) Handle() string {
	return "@" + r.BotUsername
}

// Options configures a Service.
type Options struct {
	Uniqueness   Uniqueness
	ProbeTimeout time.Duration
}

// Service runs the linking workflow.
type Service struct {
	store      store.Store
	ledger     *ledger.Ledger
	prober     Prober
	locker     Locker
	uniqueness Uniqueness
	timeout    time.Duration
	logger     *slog.Logger
	metrics    metrics.Recorder
	now        func() time.Time
}

// NewService creates a linking Service. locker may be nil.
func NewService(st store.Store, l *ledger.Ledger, prober Prober, locker Locker, opts Options, logger *slog.Logger, recorder metrics.Recorder) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if opts.Uniqueness == "" {
		opts.Uniqueness = UniquenessGlobal
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 10 * time.Second
	}

	return &Service{
		store:      st,
		ledger:     l,
		prober:     prober,
		locker:     locker,
		uniqueness: opts.Uniqueness,
		timeout:    opts.ProbeTimeout,
		logger:     logger.With("component", "linking"),
		metrics:    recorder,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Link validates, probes and links credential to userID, crediting the bonus.
func (s *Service) Link(ctx context.Context, userID, raw string) (*Result, error) {
	credential, err := NormalizeCredential(raw)
	if err != nil {
		s.metrics.IncLink(metrics.LinkInvalid)
		return nil, err
	}
	log := s.logger.With("user_id", userID, "credential", Fingerprint(credential))

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, userID)
		switch {
		case errors.Is(err, ErrLinkInProgress):
			return nil, err
		case err != nil:
			log.Warn("link lock unavailable, continuing without it", "error", err)
		default:
			defer unlock()
		}
	}

	acc, err := s.ledger.GetOrCreate(ctx, userID)
	if err != nil {
		s.metrics.IncLink(metrics.LinkFailed)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if acc.Degraded {
		s.metrics.IncLink(metrics.LinkFailed)
		return nil, ErrUnavailable
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	identity, err := s.prober.Probe(probeCtx, credential)
	cancel()
	if err != nil {
		s.metrics.IncLink(metrics.LinkInvalid)
		log.Info("credential probe failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}

	if err := s.checkDuplicate(ctx, acc, credential); err != nil {
		if errors.Is(err, ErrAlreadyLinked) {
			s.metrics.IncLink(metrics.LinkDuplicate)
		} else {
			s.metrics.IncLink(metrics.LinkFailed)
		}
		return nil, err
	}

	now := s.now()
	intent := &model.LinkIntent{
		ID:            ulid.Make().String(),
		UserID:        userID,
		Credential:    credential,
		BotUsername:   identity.Username,
		DisplayName:   identity.DisplayName,
		Bonus:         s.ledger.Policy().BonusUnit,
		Status:        model.LinkIntentPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateLinkIntent(ctx, intent); err != nil {
		s.metrics.IncLink(metrics.LinkFailed)
		log.Error("failed to journal link intent", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	updated, err := s.apply(ctx, intent, false)
	if err != nil {
		if errors.Is(err, ErrAlreadyLinked) {
			s.metrics.IncLink(metrics.LinkDuplicate)
			s.finish(ctx, intent, model.LinkIntentRejected, err)
			return nil, err
		}
		// The intent stays pending for the repairer.
		s.metrics.IncLink(metrics.LinkFailed)
		log.Error("link partially applied", "intent_id", intent.ID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrLinkPending, err)
	}

	s.finish(ctx, intent, model.LinkIntentCompleted, nil)
	s.metrics.IncLink(metrics.LinkLinked)
	log.Info("bot linked", "bot", "@"+identity.Username, "balance", updated.Balance)

	return &Result{
		BotUsername: identity.Username,
		DisplayName: identity.DisplayName,
		Bonus:       intent.Bonus,
		Balance:     updated.Balance,
	}, nil
}

// checkDuplicate rejects a credential already linked within the configured
// scope. A registration owned by this user with no matching account entry is
// a half-applied earlier link and is allowed through.
func (s *Service) checkDuplicate(ctx context.Context, acc *model.Account, credential string) error {
	if acc.HasCredential(credential) {
		return ErrAlreadyLinked
	}
	if s.uniqueness != UniquenessGlobal {
		return nil
	}

	reg, err := s.store.GetRegistration(ctx, credential)
	switch {
	case errors.Is(err, store.ErrRegistrationNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	case reg.OwnerUserID != acc.UserID:
		return ErrAlreadyLinked
	}
	return nil
}

// apply performs the intent's writes. In global mode the registration is
// claimed first so two users cannot both be credited; in user mode the
// account append comes first and the registration is upserted after.
//
// When replay is true an already-present credential means a previous attempt
// succeeded, and the current account is returned instead of ErrAlreadyLinked.
func (s *Service) apply(ctx context.Context, intent *model.LinkIntent, replay bool) (*model.Account, error) {
	reg := intent.Registration(s.now())

	if s.uniqueness == UniquenessGlobal {
		err := s.store.CreateRegistration(ctx, reg)
		if errors.Is(err, store.ErrRegistrationExists) {
			existing, gerr := s.store.GetRegistration(ctx, intent.Credential)
			if gerr != nil {
				return nil, fmt.Errorf("failed to read registration: %w", gerr)
			}
			if existing.OwnerUserID != intent.UserID {
				return nil, ErrAlreadyLinked
			}
		} else if err != nil {
			return nil, fmt.Errorf("failed to claim registration: %w", err)
		}
	}

	acc, err := s.store.AppendCredential(ctx, intent.UserID, intent.Credential, intent.Bonus)
	if errors.Is(err, store.ErrCredentialLinked) {
		if !replay {
			return nil, ErrAlreadyLinked
		}
		acc, err = s.store.GetAccount(ctx, intent.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to append credential: %w", err)
	}

	if s.uniqueness != UniquenessGlobal {
		if err := s.store.UpsertRegistration(ctx, reg); err != nil {
			return nil, fmt.Errorf("failed to write registration: %w", err)
		}
	}

	return acc, nil
}

// finish moves an intent to a terminal status. A failure here only leaves the
// intent pending, and replaying a fully applied intent is harmless.
func (s *Service) finish(ctx context.Context, intent *model.LinkIntent, status model.LinkIntentStatus, cause error) {
	intent.Status = status
	intent.UpdatedAt = s.now()
	if cause != nil {
		intent.LastError = cause.Error()
	}
	if err := s.store.UpdateLinkIntent(ctx, intent); err != nil {
		s.logger.Warn("failed to update link intent", "intent_id", intent.ID, "status", status, "error", err)
	}
}
