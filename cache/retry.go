package cache

import (
	"math"
	"time"
)

// retryState tracks exponential backoff for one failing entry.
// It is not safe for concurrent use; the owning entry guards it.
type retryState struct {
	base     time.Duration
	growth   float64
	max      time.Duration
	attempts int
	next     time.Time
}

func newRetryState(cfg *Config) retryState {
	return retryState{
		base:   cfg.ExceptionRetryDelayBase,
		growth: cfg.ExceptionRetryGrowthFactor,
		max:    cfg.ExceptionRetryDelayMax,
	}
}

// recordFailure schedules the next allowed attempt. The delay is
// base*growth^attempts clamped at max; once clamped, attempts stops growing.
func (r *retryState) recordFailure(now time.Time) time.Duration {
	delay := r.delay()
	if delay < r.max {
		r.attempts++
	} else if r.attempts == 0 {
		r.attempts = 1
	}
	r.next = now.Add(delay)
	return delay
}

func (r *retryState) delay() time.Duration {
	d := float64(r.base) * math.Pow(r.growth, float64(r.attempts))
	if math.IsNaN(d) || d >= float64(r.max) {
		return r.max
	}
	return time.Duration(d)
}

func (r *retryState) recordSuccess() {
	r.attempts = 0
	r.next = time.Time{}
}

func (r *retryState) failing() bool {
	return r.attempts > 0
}

func (r *retryState) isReady(now time.Time) bool {
	return r.attempts == 0 || !now.Before(r.next)
}
