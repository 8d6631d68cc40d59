package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	Charges      uint64
	Insufficient uint64
	Credits      uint64
	Resets       uint64
	Degraded     uint64

	LinksLinked    uint64
	LinksInvalid   uint64
	LinksDuplicate uint64
	LinksFailed    uint64

	RepairsCompleted uint64
	RepairsRetried   uint64
	RepairsRejected  uint64

	BackendAnswered        uint64
	BackendEmpty           uint64
	BackendUnavailable     uint64
	BackendError           uint64
	Fallbacks              uint64
	BackendDurationCount   uint64
	BackendDurationTotalNs int64

	RateLimited uint64
}

// InMemoryRecorder stores metrics in memory. It backs the /metrics endpoint
// and is used directly by tests.
type InMemoryRecorder struct {
	charges      uint64
	insufficient uint64
	credits      uint64
	resets       uint64
	degraded     uint64

	linksLinked    uint64
	linksInvalid   uint64
	linksDuplicate uint64
	linksFailed    uint64

	repairsCompleted uint64
	repairsRetried   uint64
	repairsRejected  uint64

	backendAnswered        uint64
	backendEmpty           uint64
	backendUnavailable     uint64
	backendError           uint64
	fallbacks              uint64
	backendDurationCount   uint64
	backendDurationTotalNs int64

	rateLimited uint64
}

var _ Recorder = (*InMemoryRecorder)(nil)

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		Charges:      atomic.LoadUint64(&m.charges),
		Insufficient: atomic.LoadUint64(&m.insufficient),
		Credits:      atomic.LoadUint64(&m.credits),
		Resets:       atomic.LoadUint64(&m.resets),
		Degraded:     atomic.LoadUint64(&m.degraded),

		LinksLinked:    atomic.LoadUint64(&m.linksLinked),
		LinksInvalid:   atomic.LoadUint64(&m.linksInvalid),
		LinksDuplicate: atomic.LoadUint64(&m.linksDuplicate),
		LinksFailed:    atomic.LoadUint64(&m.linksFailed),

		RepairsCompleted: atomic.LoadUint64(&m.repairsCompleted),
		RepairsRetried:   atomic.LoadUint64(&m.repairsRetried),
		RepairsRejected:  atomic.LoadUint64(&m.repairsRejected),

		BackendAnswered:        atomic.LoadUint64(&m.backendAnswered),
		BackendEmpty:           atomic.LoadUint64(&m.backendEmpty),
		BackendUnavailable:     atomic.LoadUint64(&m.backendUnavailable),
		BackendError:           atomic.LoadUint64(&m.backendError),
		Fallbacks:              atomic.LoadUint64(&m.fallbacks),
		BackendDurationCount:   atomic.LoadUint64(&m.backendDurationCount),
		BackendDurationTotalNs: atomic.LoadInt64(&m.backendDurationTotalNs),

		RateLimited: atomic.LoadUint64(&m.rateLimited),
	}
}

// IncCharge increments the successful charge counter.
func (m *InMemoryRecorder) IncCharge() { atomic.AddUint64(&m.charges, 1) }

// IncInsufficient increments the rejected charge counter.
func (m *InMemoryRecorder) IncInsufficient() { atomic.AddUint64(&m.insufficient, 1) }

// IncCredit increments the credit counter.
func (m *InMemoryRecorder) IncCredit() { atomic.AddUint64(&m.credits, 1) }

// IncReset increments the periodic reset counter.
func (m *InMemoryRecorder) IncReset() { atomic.AddUint64(&m.resets, 1) }

// IncDegraded counts operations served without a reachable store.
func (m *InMemoryRecorder) IncDegraded() { atomic.AddUint64(&m.degraded, 1) }

// IncLink increments the link counter for status. Unknown labels are ignored.
func (m *InMemoryRecorder) IncLink(status string) {
	switch status {
	case LinkLinked:
		atomic.AddUint64(&m.linksLinked, 1)
	case LinkInvalid:
		atomic.AddUint64(&m.linksInvalid, 1)
	case LinkDuplicate:
		atomic.AddUint64(&m.linksDuplicate, 1)
	case LinkFailed:
		atomic.AddUint64(&m.linksFailed, 1)
	}
}

// IncIntentRepair increments the repair counter for status.
func (m *InMemoryRecorder) IncIntentRepair(status string) {
	switch status {
	case RepairCompleted:
		atomic.AddUint64(&m.repairsCompleted, 1)
	case RepairRetried:
		atomic.AddUint64(&m.repairsRetried, 1)
	case RepairRejected:
		atomic.AddUint64(&m.repairsRejected, 1)
	}
}

// IncBackendCall increments the backend call counter for outcome.
func (m *InMemoryRecorder) IncBackendCall(outcome string) {
	switch outcome {
	case BackendAnswered:
		atomic.AddUint64(&m.backendAnswered, 1)
	case BackendEmpty:
		atomic.AddUint64(&m.backendEmpty, 1)
	case BackendUnavailable:
		atomic.AddUint64(&m.backendUnavailable, 1)
	case BackendError:
		atomic.AddUint64(&m.backendError, 1)
	}
}

// IncFallback increments the fallback model counter.
func (m *InMemoryRecorder) IncFallback() { atomic.AddUint64(&m.fallbacks, 1) }

// ObserveBackendDuration records a model call duration.
func (m *InMemoryRecorder) ObserveBackendDuration(duration time.Duration) {
	atomic.AddUint64(&m.backendDurationCount, 1)
	atomic.AddInt64(&m.backendDurationTotalNs, duration.Nanoseconds())
}

// IncRateLimited increments the rate limited message counter.
func (m *InMemoryRecorder) IncRateLimited() { atomic.AddUint64(&m.rateLimited, 1) }
