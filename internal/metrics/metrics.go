// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Link outcome labels.
const (
	LinkLinked    = "linked"
	LinkInvalid   = "invalid"
	LinkDuplicate = "duplicate"
	LinkFailed    = "failed"
)

// Backend call outcome labels.
const (
	BackendAnswered    = "answered"
	BackendEmpty       = "empty"
	BackendUnavailable = "unavailable"
	BackendError       = "error"
)

// Intent repair outcome labels.
const (
	RepairCompleted = "completed"
	RepairRetried   = "retried"
	RepairRejected  = "rejected"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Ledger metrics
	IncCharge()
	IncInsufficient()
	IncCredit()
	IncReset()
	IncDegraded()

	// Linking metrics
	IncLink(status string)
	IncIntentRepair(status string)

	// Generative backend metrics
	IncBackendCall(outcome string)
	IncFallback()
	ObserveBackendDuration(duration time.Duration)

	IncRateLimited()
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
