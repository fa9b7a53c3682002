package upstream

import (
	"sync"
	"time"

	"github.com/goldstarfreight/inspectetl/internal/logger"
)

// BreakerState is the circuit breaker state.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// CircuitBreaker guards the upstream against cascaded failure.
//
// It keeps a bounded sliding window of the most recent request outcomes.
// When the window is full and the failure fraction exceeds the failure
// threshold the breaker opens; after the open duration the next request is
// allowed through (half-open), and a success at or below the recovery
// threshold closes it again.
//
// The breaker is process-wide and safe for concurrent use.
type CircuitBreaker struct {
	mu sync.Mutex

	windowSize        int
	failureThreshold  float64
	recoveryThreshold float64
	openDuration      time.Duration

	window   []bool // success = true, oldest first
	state    BreakerState
	openedAt time.Time

	now func() time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(windowSize int, failureThreshold, recoveryThreshold float64, openDuration time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		windowSize:        windowSize,
		failureThreshold:  failureThreshold,
		recoveryThreshold: recoveryThreshold,
		openDuration:      openDuration,
		state:             StateClosed,
		now:               time.Now,
	}
}

// BeforeRequest gates a request on the breaker state. While open and inside
// the cooldown it returns ErrCircuitOpen; once the cooldown elapses the
// breaker moves to half-open and the probe request is permitted.
func (b *CircuitBreaker) BeforeRequest() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}
	if b.now().Sub(b.openedAt) < b.openDuration {
		return ErrCircuitOpen
	}

	b.state = StateHalfOpen
	logger.Info("circuit breaker half-open, permitting probe request",
		logger.KeyBreaker, b.state, logger.KeyFailRate, b.failureRate())
	return nil
}

// RecordSuccess records a successful request and evaluates transitions.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.push(true)

	switch b.state {
	case StateHalfOpen:
		if b.failureRate() <= b.recoveryThreshold {
			b.state = StateClosed
			logger.Info("circuit breaker closed after recovery",
				logger.KeyBreaker, b.state, logger.KeyFailRate, b.failureRate())
		}

	case StateClosed:
		// A success can be the push that fills the window while the rate
		// already sits above the threshold.
		b.tripLocked()
	}
}

// RecordFailure records a failed request and evaluates transitions.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.push(false)

	switch b.state {
	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = b.now()
		logger.Warn("circuit breaker re-opened after failed probe",
			logger.KeyBreaker, b.state, logger.KeyFailRate, b.failureRate())

	case StateClosed:
		b.tripLocked()
	}
}

// tripLocked opens the breaker when the window is full and the failure
// fraction exceeds the threshold. Caller holds the mutex.
func (b *CircuitBreaker) tripLocked() {
	if len(b.window) < b.windowSize || b.failureRate() <= b.failureThreshold {
		return
	}
	b.state = StateOpen
	b.openedAt = b.now()
	logger.Warn("circuit breaker opened",
		logger.KeyBreaker, b.state, logger.KeyFailRate, b.failureRate())
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureRate returns the current failure fraction of the window.
func (b *CircuitBreaker) FailureRate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureRate()
}

// push appends an outcome, evicting the oldest once the window is full.
func (b *CircuitBreaker) push(success bool) {
	b.window = append(b.window, success)
	if len(b.window) > b.windowSize {
		b.window = b.window[1:]
	}
}

func (b *CircuitBreaker) failureRate() float64 {
	if len(b.window) == 0 {
		return 0
	}
	failures := 0
	for _, ok := range b.window {
		if !ok {
			failures++
		}
	}
	return float64(failures) / float64(len(b.window))
}
