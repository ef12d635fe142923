package backoff

import (
	"math/rand"
	"time"
)

// JitterType selects how NewJitterFunc randomizes a base interval.
type JitterType int

const (
	// NoJitter returns the interval unchanged.
	NoJitter JitterType = iota
	// FullJitter returns a uniformly random duration in [0, interval].
	FullJitter
	// Jitter returns a uniformly random duration in [interval/2, interval*1.5].
	Jitter
)

// NewJitterFunc returns a function that applies the given jitter strategy to
// a base interval. The returned function is safe for concurrent use.
func NewJitterFunc(jt JitterType) func(time.Duration) time.Duration {
	switch jt {
	case FullJitter:
		return func(interval time.Duration) time.Duration {
			if interval <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(interval) + 1))
		}
	case Jitter:
		return func(interval time.Duration) time.Duration {
			if interval <= 0 {
				return 0
			}
			half := interval / 2
			return half + time.Duration(rand.Int63n(int64(interval)+1))
		}
	default:
		return func(interval time.Duration) time.Duration {
			if interval <= 0 {
				return 0
			}
			return interval
		}
	}
}

// WithJitter wraps a RetryPolicy so that ComputeNextInterval's result is
// randomized by jitterFunc before being returned. The exhausted-retries
// error from the wrapped policy is passed through unchanged.
func WithJitter(base RetryPolicy, jt JitterType) RetryPolicy {
	return &jitteredPolicy{base: base, jitter: NewJitterFunc(jt)}
}

type jitteredPolicy struct {
	base   RetryPolicy
	jitter func(time.Duration) time.Duration
}

func (p *jitteredPolicy) ComputeNextInterval(retryCount int, elapsedTime time.Duration, err error) (time.Duration, error) {
	interval, computeErr := p.base.ComputeNextInterval(retryCount, elapsedTime, err)
	if computeErr != nil {
		return 0, computeErr
	}
	return p.jitter(interval), nil
}
