package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/goldstarfreight/inspectetl/pkg/config"
)

func TestRetryDelayGrowth(t *testing.T) {
	r := NewRetryScheduler(config.RetryConfig{
		BaseDelay:   5 * time.Minute,
		Multiplier:  2.0,
		MaxDelay:    24 * time.Hour,
		MaxAttempts: 5,
	})

	assert.Equal(t, 5*time.Minute, r.Delay(0))
	assert.Equal(t, 10*time.Minute, r.Delay(1))
	assert.Equal(t, 20*time.Minute, r.Delay(2))
	assert.Equal(t, 40*time.Minute, r.Delay(3))
}

func TestRetryDelayCap(t *testing.T) {
	r := NewRetryScheduler(config.RetryConfig{
		BaseDelay:   5 * time.Minute,
		Multiplier:  2.0,
		MaxDelay:    time.Hour,
		MaxAttempts: 20,
	})

	assert.Equal(t, time.Hour, r.Delay(10))
}

func TestRetryNext(t *testing.T) {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	r := NewRetryScheduler(config.RetryConfig{
		BaseDelay:   5 * time.Minute,
		Multiplier:  2.0,
		MaxDelay:    24 * time.Hour,
		MaxAttempts: 3,
	})
	r.now = func() time.Time { return now }

	at, permanent := r.Next(1)
	assert.False(t, permanent)
	assert.Equal(t, now.Add(10*time.Minute), at)

	_, permanent = r.Next(3)
	assert.True(t, permanent)

	_, permanent = r.Next(4)
	assert.True(t, permanent)
}
