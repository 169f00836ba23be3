package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoff_NextDelay(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
		Jitter:     0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second}, // capped
		{10, time.Second},
		{-1, 100 * time.Millisecond},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, backoff.NextDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponentialBackoff_JitterStaysInBounds(t *testing.T) {
	backoff := DefaultExponentialBackoff()

	for i := 0; i < 200; i++ {
		delay := backoff.NextDelay(2)
		assert.GreaterOrEqual(t, delay, 360*time.Millisecond)
		assert.LessOrEqual(t, delay, 440*time.Millisecond)
	}
}

func TestNotificationBackoff(t *testing.T) {
	backoff := NotificationBackoff()
	backoff.Jitter = 0

	assert.Equal(t, time.Second, backoff.NextDelay(0))
	assert.Equal(t, 8*time.Second, backoff.NextDelay(3))
	assert.Equal(t, 30*time.Second, backoff.NextDelay(8))
}

func TestFixedBackoff(t *testing.T) {
	backoff := &FixedBackoff{Delay: 50 * time.Millisecond}
	for attempt := 0; attempt < 5; attempt++ {
		assert.Equal(t, 50*time.Millisecond, backoff.NextDelay(attempt))
	}
}
