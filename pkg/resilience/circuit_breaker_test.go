package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTest = errors.New("test error")

func openBreaker(t *testing.T, cb *CircuitBreaker, failures int) {
	t.Helper()
	for i := 0; i < failures; i++ {
		_ = cb.Call(func() error { return errTest })
	}
	require.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_DefaultConfig(t *testing.T) {
	config := DefaultCircuitBreakerConfig()

	assert.Equal(t, uint32(5), config.MaxFailures)
	assert.Equal(t, 30*time.Second, config.Timeout)
	assert.Equal(t, uint32(1), config.MaxRequestsHalfOpen)
}

func TestCircuitBreaker_SuccessfulCalls(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	for i := 0; i < 10; i++ {
		require.NoError(t, cb.Call(func() error { return nil }))
	}

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, uint32(0), cb.Failures())
}

func TestCircuitBreaker_TransitionToOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 3, Timeout: time.Second, MaxRequestsHalfOpen: 1})

	openBreaker(t, cb, 3)

	executed := false
	err := cb.Call(func() error {
		executed = true
		return nil
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, executed, "function should not execute when circuit is open")
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 3, Timeout: time.Second, MaxRequestsHalfOpen: 1})

	_ = cb.Call(func() error { return errTest })
	_ = cb.Call(func() error { return errTest })
	_ = cb.Call(func() error { return nil })
	_ = cb.Call(func() error { return errTest })

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, uint32(1), cb.Failures())
}

func TestCircuitBreaker_IgnoredErrorsDoNotTrip(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Second, MaxRequestsHalfOpen: 1})
	notFound := errors.New("not found")
	isNotFound := func(err error) bool { return errors.Is(err, notFound) }

	for i := 0; i < 5; i++ {
		err := cb.Call(func() error { return notFound }, isNotFound)
		assert.ErrorIs(t, err, notFound)
	}

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 3, Timeout: time.Minute, MaxRequestsHalfOpen: 1})
	cb.now = func() time.Time { return now }

	openBreaker(t, cb, 3)

	now = now.Add(2 * time.Minute)

	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 3, Timeout: time.Minute, MaxRequestsHalfOpen: 1})
	cb.now = func() time.Time { return now }

	openBreaker(t, cb, 3)
	now = now.Add(2 * time.Minute)

	err := cb.Call(func() error { return errTest })
	assert.ErrorIs(t, err, errTest)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_MaxRequestsHalfOpen(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Minute, MaxRequestsHalfOpen: 2})
	cb.now = func() time.Time { return now }

	openBreaker(t, cb, 2)
	now = now.Add(2 * time.Minute)

	for i := 0; i < 2; i++ {
		assert.NoError(t, cb.beforeCall(), "call %d should be allowed in half-open", i+1)
	}
	assert.ErrorIs(t, cb.beforeCall(), ErrTooManyRequests)
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var mu sync.Mutex
	var transitions []string

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:         1,
		Timeout:             time.Minute,
		MaxRequestsHalfOpen: 1,
		OnStateChange: func(from, to CircuitState) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	now := time.Now()
	cb.now = func() time.Time { return now }

	_ = cb.Call(func() error { return errTest })
	now = now.Add(2 * time.Minute)
	_ = cb.Call(func() error { return nil })

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Second, MaxRequestsHalfOpen: 1})

	openBreaker(t, cb, 2)
	cb.Reset()

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, uint32(0), cb.Failures())
	assert.NoError(t, cb.Call(func() error { return nil }))
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(42).String())
}
