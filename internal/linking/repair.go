package linking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zunhub/zun/internal/metrics"
	"github.com/zunhub/zun/internal/model"
)

const defaultRepairBatch = 50

// RepairStats summarizes one repair pass.
type RepairStats struct {
	Completed int
	Retried   int
	Rejected  int
}

// Repairer rolls pending link intents forward.
type Repairer struct {
	svc         *Service
	grace       time.Duration
	maxAttempts int
	batch       int
}

// NewRepairer creates a Repairer. Intents younger than grace are left to the
// request that created them.
func NewRepairer(svc *Service, grace time.Duration, maxAttempts int) *Repairer {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Repairer{
		svc:         svc,
		grace:       grace,
		maxAttempts: maxAttempts,
		batch:       defaultRepairBatch,
	}
}

// RepairPending processes one batch of due intents.
func (r *Repairer) RepairPending(ctx context.Context) (RepairStats, error) {
	var stats RepairStats

	now := r.svc.now()
	intents, err := r.svc.store.ListDueLinkIntents(ctx, now, now.Add(-r.grace), r.batch)
	if err != nil {
		return stats, fmt.Errorf("failed to list pending link intents: %w", err)
	}

	for _, intent := range intents {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		switch r.repairOne(ctx, intent) {
		case metrics.RepairCompleted:
			stats.Completed++
		case metrics.RepairRetried:
			stats.Retried++
		case metrics.RepairRejected:
			stats.Rejected++
		}
	}

	if len(intents) > 0 {
		r.svc.logger.Info("link intent repair pass",
			"due", len(intents),
			"completed", stats.Completed,
			"retried", stats.Retried,
			"rejected", stats.Rejected,
		)
	}
	return stats, nil
}

func (r *Repairer) repairOne(ctx context.Context, intent *model.LinkIntent) string {
	log := r.svc.logger.With("intent_id", intent.ID, "user_id", intent.UserID, "credential", Fingerprint(intent.Credential))

	_, err := r.svc.apply(ctx, intent, true)
	switch {
	case err == nil:
		r.svc.finish(ctx, intent, model.LinkIntentCompleted, nil)
		r.svc.metrics.IncIntentRepair(metrics.RepairCompleted)
		log.Info("link intent repaired", "attempts", intent.Attempts+1)
		return metrics.RepairCompleted

	case errors.Is(err, ErrAlreadyLinked):
		r.svc.finish(ctx, intent, model.LinkIntentRejected, err)
		r.svc.metrics.IncIntentRepair(metrics.RepairRejected)
		log.Warn("link intent rejected, credential owned by another user")
		return metrics.RepairRejected
	}

	intent.Attempts++
	if IsExhausted(intent.Attempts, r.maxAttempts) {
		r.svc.finish(ctx, intent, model.LinkIntentRejected, err)
		r.svc.metrics.IncIntentRepair(metrics.RepairRejected)
		log.Error("link intent abandoned", "attempts", intent.Attempts, "error", err)
		return metrics.RepairRejected
	}

	intent.LastError = err.Error()
	intent.NextAttemptAt = r.svc.now().Add(NextRetryDelay(intent.Attempts - 1))
	intent.UpdatedAt = r.svc.now()
	if uerr := r.svc.store.UpdateLinkIntent(ctx, intent); uerr != nil {
		log.Warn("failed to reschedule link intent", "error", uerr)
	}
	r.svc.metrics.IncIntentRepair(metrics.RepairRetried)
	log.Warn("link intent repair failed, will retry", "attempts", intent.Attempts, "next_attempt_at", intent.NextAttemptAt, "error", err)
	return metrics.RepairRetried
}
