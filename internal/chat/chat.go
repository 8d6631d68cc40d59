// Package chat runs one metered question: reset check, balance check, model
// call with a single fallback on a retired model, then the charge.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/zunhub/zun/internal/genai"
	"github.com/zunhub/zun/internal/ledger"
	"github.com/zunhub/zun/internal/metrics"
)

// Outcome classifies how a question was handled.
type Outcome int

// Outcome values.
const (
	// OutcomeAnswered means the model produced text. Reply.Charged says
	// whether the unit cost was actually deducted.
	OutcomeAnswered Outcome = iota + 1
	// OutcomeInsufficient means the balance did not cover one question and
	// the model was not called.
	OutcomeInsufficient
	// OutcomeEmpty means the model returned no text. Nothing was charged.
	OutcomeEmpty
	// OutcomeBackendUnavailable means both the primary and fallback model
	// failed after the primary was reported missing.
	OutcomeBackendUnavailable
	// OutcomeRetryLater means a transient backend failure.
	OutcomeRetryLater
	// OutcomeRateLimited means the user sent too many questions too quickly.
	OutcomeRateLimited
	// OutcomeStoreUnavailable means the ledger is down and fail-closed.
	OutcomeStoreUnavailable
)

var outcomeNames = map[Outcome]string{
	OutcomeAnswered:           "answered",
	OutcomeInsufficient:       "insufficient",
	OutcomeEmpty:              "empty",
	OutcomeBackendUnavailable: "backend_unavailable",
	OutcomeRetryLater:         "retry_later",
	OutcomeRateLimited:        "rate_limited",
	OutcomeStoreUnavailable:   "store_unavailable",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

// Reply is the result of Ask.
type Reply struct {
	Outcome Outcome
	Text    string

	// Balance and Remaining describe the account after the question.
	Balance   float64
	Remaining int64

	Charged    bool
	FellBack   bool
	Degraded   bool
	RetryAfter time.Duration
}

// RateLimiter throttles questions per user.
type RateLimiter interface {
	Allow(ctx context.Context, userID string) (allowed bool, retryAfter time.Duration, err error)
}

// Options configures a Service.
type Options struct {
	Model         string
	FallbackModel string
	Timeout       time.Duration
}

// Service answers metered questions.
type Service struct {
	ledger    *ledger.Ledger
	generator genai.Generator
	limiter   RateLimiter
	opts      Options
	logger    *slog.Logger
	metrics   metrics.Recorder
}

// NewService creates a chat Service. limiter may be nil.
func NewService(l *ledger.Ledger, gen genai.Generator, limiter RateLimiter, opts Options, logger *slog.Logger, recorder metrics.Recorder) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Service{
		ledger:    l,
		generator: gen,
		limiter:   limiter,
		opts:      opts,
		logger:    logger.With("component", "chat"),
		metrics:   recorder,
	}
}

// AskOption customizes a single Ask call.
type AskOption func(*askConfig)

type askConfig struct {
	onFallback func()
}

// WithFallbackNotice registers fn to run right before the fallback model is
// tried.
func WithFallbackNotice(fn func()) AskOption {
	return func(c *askConfig) { c.onFallback = fn }
}

// Ask answers text for userID, charging one unit on success.
func (s *Service) Ask(ctx context.Context, userID, text string, opts ...AskOption) (*Reply, error) {
	var cfg askConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	log := s.logger.With("user_id", userID)
	unit := s.ledger.Policy().UnitCost

	if s.limiter != nil {
		allowed, retryAfter, err := s.limiter.Allow(ctx, userID)
		if err != nil {
			log.Warn("rate limiter unavailable", "error", err)
		} else if !allowed {
			s.metrics.IncRateLimited()
			return &Reply{Outcome: OutcomeRateLimited, RetryAfter: retryAfter}, nil
		}
	}

	if _, err := s.ledger.MaybeReset(ctx, userID); err != nil {
		return s.ledgerFailure(err)
	}

	acc, err := s.ledger.GetOrCreate(ctx, userID)
	if err != nil {
		return s.ledgerFailure(err)
	}
	if !acc.CanAfford(unit) {
		return &Reply{
			Outcome:   OutcomeInsufficient,
			Balance:   acc.Balance,
			Remaining: acc.RemainingRequests(unit),
		}, nil
	}

	answer, err := s.generate(ctx, s.opts.Model, text)
	fellBack := false
	if err != nil {
		if !genai.IsModelUnavailable(err) || s.opts.FallbackModel == "" {
			log.Error("model call failed", "model", s.opts.Model, "error", err)
			return &Reply{Outcome: OutcomeRetryLater, Balance: acc.Balance, Remaining: acc.RemainingRequests(unit)}, nil
		}

		log.Warn("model unavailable, switching to fallback", "model", s.opts.Model, "fallback", s.opts.FallbackModel, "error", err)
		s.metrics.IncFallback()
		if cfg.onFallback != nil {
			cfg.onFallback()
		}

		fellBack = true
		answer, err = s.generate(ctx, s.opts.FallbackModel, text)
		if err != nil {
			log.Error("fallback model call failed", "model", s.opts.FallbackModel, "error", err)
			return &Reply{Outcome: OutcomeBackendUnavailable, FellBack: true, Balance: acc.Balance, Remaining: acc.RemainingRequests(unit)}, nil
		}
	}

	if strings.TrimSpace(answer) == "" {
		return &Reply{Outcome: OutcomeEmpty, FellBack: fellBack, Balance: acc.Balance, Remaining: acc.RemainingRequests(unit)}, nil
	}

	reply := &Reply{Outcome: OutcomeAnswered, Text: answer, FellBack: fellBack}

	charged, err := s.ledger.Charge(ctx, userID, unit)
	switch {
	case err == nil:
		reply.Charged = !charged.Degraded
		reply.Degraded = charged.Degraded
		reply.Balance = charged.Balance
		reply.Remaining = charged.RemainingRequests(unit)
	case errors.Is(err, ledger.ErrInsufficientBalance):
		// A concurrent question spent the balance while this one was in flight.
		log.Info("charge lost race, answer delivered uncharged")
		if latest, gerr := s.ledger.GetOrCreate(ctx, userID); gerr == nil {
			reply.Balance = latest.Balance
			reply.Remaining = latest.RemainingRequests(unit)
		}
	default:
		log.Error("charge failed, answer delivered uncharged", "error", err)
		reply.Balance = acc.Balance
		reply.Remaining = acc.RemainingRequests(unit)
	}

	return reply, nil
}

// generate calls the backend once under the configured timeout.
func (s *Service) generate(ctx context.Context, model, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	start := time.Now()
	text, err := s.generator.Generate(ctx, model, prompt)
	s.metrics.ObserveBackendDuration(time.Since(start))

	switch {
	case err == nil && strings.TrimSpace(text) == "":
		s.metrics.IncBackendCall(metrics.BackendEmpty)
	case err == nil:
		s.metrics.IncBackendCall(metrics.BackendAnswered)
	case genai.IsModelUnavailable(err):
		s.metrics.IncBackendCall(metrics.BackendUnavailable)
	default:
		s.metrics.IncBackendCall(metrics.BackendError)
	}
	return text, err
}

// ledgerFailure maps a ledger error. Only a fail-closed outage is expected;
// anything else is returned to the caller.
func (s *Service) ledgerFailure(err error) (*Reply, error) {
	if errors.Is(err, ledger.ErrStoreUnavailable) {
		return &Reply{Outcome: OutcomeStoreUnavailable}, nil
	}
	return nil, err
}
