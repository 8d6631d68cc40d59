// Package scheduler runs background jobs on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultJobTimeout bounds a single job run.
const DefaultJobTimeout = 5 * time.Minute

// JobFunc is one run of a scheduled job.
type JobFunc func(ctx context.Context) error

// Scheduler runs jobs on cron schedules. Overlapping runs of the same job are
// skipped and panics are recovered.
type Scheduler struct {
	cron       *cron.Cron
	logger     *slog.Logger
	jobTimeout time.Duration

	mu      sync.Mutex
	baseCtx context.Context
	started bool
}

// New creates a Scheduler.
func New(logger *slog.Logger, jobTimeout time.Duration) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if jobTimeout <= 0 {
		jobTimeout = DefaultJobTimeout
	}
	logger = logger.With("component", "scheduler")

	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:     logger,
		jobTimeout: jobTimeout,
		baseCtx:    context.Background(),
	}
}

// Add registers job under name on spec, e.g. "@every 1m" or "*/5 * * * *".
func (s *Scheduler) Add(name, spec string, job JobFunc) error {
	if job == nil {
		return errors.New("job is nil")
	}

	_, err := s.cron.AddFunc(spec, func() {
		s.run(name, job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s on %q: %w", name, spec, err)
	}
	s.logger.Info("job scheduled", "job", name, "schedule", spec)
	return nil
}

func (s *Scheduler) run(name string, job JobFunc) {
	s.mu.Lock()
	base := s.baseCtx
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(base, s.jobTimeout)
	defer cancel()

	start := time.Now()
	err := job(ctx)
	duration := time.Since(start)

	switch {
	case err == nil:
		s.logger.Debug("job finished", "job", name, "duration_ms", duration.Milliseconds())
	case errors.Is(err, context.Canceled):
		s.logger.Info("job cancelled", "job", name)
	default:
		s.logger.Error("job failed", "job", name, "duration_ms", duration.Milliseconds(), "error", err)
	}
}

// Run starts the schedule and blocks until ctx is cancelled, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	s.started = true
	s.baseCtx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))

	<-ctx.Done()

	s.logger.Info("scheduler stopping")
	<-s.cron.Stop().Done()
	return nil
}

// cronLogger adapts slog to cron's logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
