package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncCharge()                                    {}
func (n *NoopRecorder) IncInsufficient()                              {}
func (n *NoopRecorder) IncCredit()                                    {}
func (n *NoopRecorder) IncReset()                                     {}
func (n *NoopRecorder) IncDegraded()                                  {}
func (n *NoopRecorder) IncLink(status string)                         {}
func (n *NoopRecorder) IncIntentRepair(status string)                 {}
func (n *NoopRecorder) IncBackendCall(outcome string)                 {}
func (n *NoopRecorder) IncFallback()                                  {}
func (n *NoopRecorder) ObserveBackendDuration(duration time.Duration) {}
func (n *NoopRecorder) IncRateLimited()                               {}
