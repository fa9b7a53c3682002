package upstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(windowSize int) (*CircuitBreaker, *time.Time) {
	b := NewCircuitBreaker(windowSize, 0.5, 0.3, time.Minute)
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerStaysClosedOnPartialWindow(t *testing.T) {
	b, _ := newTestBreaker(10)

	// All failures, but the window is not full yet.
	for i := 0; i < 9; i++ {
		b.RecordFailure()
	}
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.BeforeRequest())
}

func TestBreakerOpensOnFullWindow(t *testing.T) {
	b, _ := newTestBreaker(10)

	for i := 0; i < 4; i++ {
		b.RecordSuccess()
	}
	for i := 0; i < 6; i++ {
		b.RecordFailure()
	}
	assert.Equal(t, StateOpen, b.State())
	assert.InDelta(t, 0.6, b.FailureRate(), 1e-9)
	assert.ErrorIs(t, b.BeforeRequest(), ErrCircuitOpen)
}

func TestBreakerOpensWhenSuccessFillsWindow(t *testing.T) {
	b, _ := newTestBreaker(4)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	require.Equal(t, StateClosed, b.State())

	// The success completes the window with the rate already past the
	// threshold (3/4 > 0.5).
	b.RecordSuccess()
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.BeforeRequest(), ErrCircuitOpen)
}

func TestBreakerExactThresholdStaysClosed(t *testing.T) {
	b, _ := newTestBreaker(10)

	for i := 0; i < 5; i++ {
		b.RecordSuccess()
		b.RecordFailure()
	}
	// Rate equals the threshold; opening requires exceeding it.
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenAfterCooldown(t *testing.T) {
	b, now := newTestBreaker(4)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	require.Equal(t, StateOpen, b.State())

	*now = now.Add(30 * time.Second)
	assert.ErrorIs(t, b.BeforeRequest(), ErrCircuitOpen)

	*now = now.Add(31 * time.Second)
	assert.NoError(t, b.BeforeRequest())
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestBreakerClosesAfterRecovery(t *testing.T) {
	b, now := newTestBreaker(4)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	*now = now.Add(2 * time.Minute)
	require.NoError(t, b.BeforeRequest())

	// Successes dilute the window; it closes once the rate reaches the
	// recovery threshold (0.25 <= 0.3).
	b.RecordSuccess()
	assert.Equal(t, StateHalfOpen, b.State())
	b.RecordSuccess()
	assert.Equal(t, StateHalfOpen, b.State())
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	b, now := newTestBreaker(4)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	*now = now.Add(2 * time.Minute)
	require.NoError(t, b.BeforeRequest())
	require.Equal(t, StateHalfOpen, b.State())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())

	// The cooldown restarts from the failed probe.
	assert.ErrorIs(t, b.BeforeRequest(), ErrCircuitOpen)
	*now = now.Add(2 * time.Minute)
	assert.NoError(t, b.BeforeRequest())
}

func TestBreakerFailureRateEmptyWindow(t *testing.T) {
	b, _ := newTestBreaker(10)
	assert.Zero(t, b.FailureRate())
}
