package engine

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffConfig configures the deterministic retry-delay sequence used after
// a rate-limit detection: attempt k waits min(base * 3^(k-1), max), so the
// defaults yield 5s, 15s, 45s.
type BackoffConfig struct {
	Base       time.Duration // First delay (default 5s)
	Max        time.Duration // Delay cap (default 60s)
	MaxRetries int           // Attempts before fallback (default 3)
}

// DefaultBackoffConfig returns the default rate-limit retry configuration.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Base:       5 * time.Second,
		Max:        60 * time.Second,
		MaxRetries: 3,
	}
}

// newPolicy builds the underlying exponential policy. RandomizationFactor is
// zero: retry timing after an explicit throttle signal must be reproducible,
// not jittered.
func (c BackoffConfig) newPolicy() *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.Base
	policy.MaxInterval = c.Max
	policy.Multiplier = 3.0
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0 // Attempt count, not elapsed time, bounds retries
	policy.Reset()
	return policy
}

// Delay returns the wait before retry attempt k (1-based). Attempts beyond
// MaxRetries return backoff.Stop.
func (c BackoffConfig) Delay(attempt int) time.Duration {
	if attempt < 1 || attempt > c.MaxRetries {
		return backoff.Stop
	}

	policy := c.newPolicy()
	d := policy.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = policy.NextBackOff()
	}
	return d
}

// Sequence returns the full delay sequence for MaxRetries attempts.
func (c BackoffConfig) Sequence() []time.Duration {
	policy := c.newPolicy()
	seq := make([]time.Duration, 0, c.MaxRetries)
	for i := 0; i < c.MaxRetries; i++ {
		seq = append(seq, policy.NextBackOff())
	}
	return seq
}
