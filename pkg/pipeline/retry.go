package pipeline

import (
	"math"
	"time"

	"github.com/goldstarfreight/inspectetl/pkg/config"
)

// RetryScheduler computes work-item level retry schedules. These are
// distinct from the intra-request transport retries: a scheduled retry puts
// the item back in the eligible pool after a delay.
type RetryScheduler struct {
	cfg config.RetryConfig
	now func() time.Time
}

// NewRetryScheduler creates a scheduler.
func NewRetryScheduler(cfg config.RetryConfig) *RetryScheduler {
	return &RetryScheduler{cfg: cfg, now: time.Now}
}

// Next returns the schedule for a failure that brings the item to
// retryCount attempts. When the attempt budget is exhausted, permanent is
// true and the returned time is meaningless.
func (r *RetryScheduler) Next(retryCount int) (nextRetryAt time.Time, permanent bool) {
	if retryCount >= r.cfg.MaxAttempts {
		return time.Time{}, true
	}
	return r.now().Add(r.Delay(retryCount)), false
}

// Delay returns the backoff delay for a given retry count, capped at the
// configured maximum.
func (r *RetryScheduler) Delay(retryCount int) time.Duration {
	delay := float64(r.cfg.BaseDelay) * math.Pow(r.cfg.Multiplier, float64(retryCount))
	if max := float64(r.cfg.MaxDelay); delay > max {
		delay = max
	}
	return time.Duration(delay)
}
