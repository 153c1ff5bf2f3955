package domain

import (
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 1000 * time.Millisecond
	DefaultCapDelay    = 8000 * time.Millisecond

	// MaxJitterFraction bounds how much jitter may shave off a delay.
	MaxJitterFraction = 0.2
)

// RetryPolicy bounds the attempts of one logical call.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	CapDelay    time.Duration
}

// NewRetryPolicy fills zero values with defaults.
func NewRetryPolicy(maxAttempts int, base, capDelay time.Duration) RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if capDelay <= 0 {
		capDelay = DefaultCapDelay
	}
	if base > capDelay {
		base = capDelay
	}
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   base,
		CapDelay:    capDelay,
	}
}

// Delay returns the wait before retry number retry (0-based), i.e. between
// attempt retry+1 and attempt retry+2. jitter in [0,1] removes up to 20% of
// the delay while it is below the cap; a capped delay is exactly CapDelay, so
// successive delays never decrease.
func (p RetryPolicy) Delay(retry int, jitter float64) time.Duration {
	if retry < 0 {
		retry = 0
	}

	d := p.BaseDelay
	for i := 0; i < retry && d < p.CapDelay; i++ {
		d *= 2
	}
	if d >= p.CapDelay {
		return p.CapDelay
	}

	jitter = min(max(jitter, 0), 1)
	return d - time.Duration(float64(d)*MaxJitterFraction*jitter)
}

// Schedule returns a fresh backoff.BackOff walking this policy. jitter may be
// nil for uniformly random jitter. The schedule itself is unbounded; callers
// cap it with backoff.WithMaxRetries(MaxAttempts-1).
func (p RetryPolicy) Schedule(jitter func() float64) backoff.BackOff {
	if jitter == nil {
		jitter = rand.Float64
	}
	return &schedule{policy: p, jitter: jitter}
}

type schedule struct {
	policy RetryPolicy
	jitter func() float64
	retry  int
}

func (s *schedule) NextBackOff() time.Duration {
	d := s.policy.Delay(s.retry, s.jitter())
	s.retry++
	return d
}

func (s *schedule) Reset() {
	s.retry = 0
}
