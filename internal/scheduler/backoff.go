package scheduler

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const maxBackoffInterval = 24 * time.Hour

// newBackOff returns the retry delay policy for one run: base doubled per
// retry without jitter, never below floor. The floor is applied to the base
// so the sequence stays strictly increasing.
func newBackOff(base, floor time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = max(base, floor)
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = maxBackoffInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// RetryDelays returns the delays a run waits before each of its retries
func RetryDelays(base, floor time.Duration, maxRetries int) []time.Duration {
	b := newBackOff(base, floor)
	delays := make([]time.Duration, 0, maxRetries)
	for i := 0; i < maxRetries; i++ {
		delays = append(delays, b.NextBackOff())
	}
	return delays
}
