package resilience

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
)

// BackoffPolicy shapes the wait between reconnect attempts.
type BackoffPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// MaxElapsedTime ends a retry burst; 0 never stops.
	MaxElapsedTime time.Duration
	// Jitter is the randomization factor in [0, 1].
	Jitter float64
}

// DefaultBackoffPolicy returns the reconnect policy used when none is configured
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		Multiplier:      1.5,
		Jitter:          backoff.DefaultRandomizationFactor,
	}
}

// NewBackOff builds an exponential backoff measuring elapsed time on clk.
func (p BackoffPolicy) NewBackOff(clk clock.Clock) backoff.BackOff {
	if clk == nil {
		clk = clock.New()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.MaxElapsedTime = p.MaxElapsedTime
	b.RandomizationFactor = p.Jitter
	b.Clock = clk
	b.Reset()
	return b
}
