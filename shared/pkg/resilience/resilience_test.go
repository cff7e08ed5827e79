package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fastRetry(retryable func(error) bool) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     3,
		InitialDelay:    time.Millisecond,
		MaxDelay:        5 * time.Millisecond,
		BackoffFactor:   2,
		RetryableErrors: retryable,
	}
}

func TestRetry_SucceedsAfterRetryableFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(func(error) bool { return true }), func() error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(func(error) bool { return false }), func() error {
		calls++
		return errBoom
	})

	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, calls)
}

func TestRetryWithResult_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := RetryWithResult(context.Background(), fastRetry(func(error) bool { return true }), func() (int, error) {
		calls++
		return 0, errBoom
	})

	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "max retries (3) exceeded")
	assert.Equal(t, 3, calls)
}

func TestRetry_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastRetry(nil), func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	config := DefaultCircuitBreakerConfig("inventory-service")
	config.FailureThreshold = 2
	cb := NewCircuitBreaker(config, nil, nil)

	for i := 0; i < 2; i++ {
		_, err := cb.Execute(context.Background(), func() (interface{}, error) { return nil, errBoom })
		assert.ErrorIs(t, err, errBoom)
	}

	assert.Equal(t, gobreaker.StateOpen, cb.State())
	_, err := cb.Execute(context.Background(), func() (interface{}, error) { return "unreachable", nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_IsSuccessfulIgnoresBusinessErrors(t *testing.T) {
	errRejected := errors.New("insufficient stock")
	config := DefaultCircuitBreakerConfig("inventory-service")
	config.FailureThreshold = 1
	config.IsSuccessful = func(err error) bool { return err == nil || errors.Is(err, errRejected) }
	cb := NewCircuitBreaker(config, nil, nil)

	for i := 0; i < 5; i++ {
		_, err := cb.Execute(context.Background(), func() (interface{}, error) { return nil, errRejected })
		assert.ErrorIs(t, err, errRejected)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreakerRegistry_ReusesBreakers(t *testing.T) {
	registry := NewCircuitBreakerRegistry(nil, nil)
	a := registry.GetWithConfig(DefaultCircuitBreakerConfig("payment-service"))
	b := registry.GetWithConfig(DefaultCircuitBreakerConfig("payment-service"))

	assert.Same(t, a, b)
	assert.Equal(t, "closed", registry.Status()["payment-service"].State)
}
