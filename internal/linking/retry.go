package linking

import (
	"math/rand"
	"time"
)

// Repair delays for a pending link intent.
// Attempt 1: 30s, Attempt 2: 2 min, Attempt 3: 10 min,
// Attempt 4: 30 min, Attempt 5: 2 hours
var retryDelays = []time.Duration{
	30 * time.Second,
	2 * time.Minute,
	10 * time.Minute,
	30 * time.Minute,
	2 * time.Hour,
}

const (
	// DefaultMaxAttempts is the default number of repair attempts before an
	// intent is rejected.
	DefaultMaxAttempts = 5

	// JitterFactor is the ±percentage of jitter applied to delays.
	JitterFactor = 0.2
)

// NextRetryDelay calculates the next repair delay with backoff and jitter.
// attemptCount is 0-indexed.
func NextRetryDelay(attemptCount int) time.Duration {
	if attemptCount < 0 {
		attemptCount = 0
	}
	if attemptCount >= len(retryDelays) {
		attemptCount = len(retryDelays) - 1
	}

	base := retryDelays[attemptCount]
	jitterRange := float64(base) * JitterFactor
	jitter := (rand.Float64()*2 - 1) * jitterRange

	return time.Duration(float64(base) + jitter)
}

// IsExhausted returns true if max attempts have been reached.
func IsExhausted(attemptCount, maxAttempts int) bool {
	return attemptCount >= maxAttempts
}
