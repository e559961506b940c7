package embedder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedRand(v float64) func() float64 {
	return func() float64 { return v }
}

func TestBackoffPolicy_Delay(t *testing.T) {
	p := BackoffPolicy{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
		Multiplier:  2,
	}

	assert.Equal(t, 100*time.Millisecond, p.Delay(1, nil))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2, nil))
	assert.Equal(t, 400*time.Millisecond, p.Delay(3, nil))
	assert.Equal(t, 800*time.Millisecond, p.Delay(4, nil))
	assert.Equal(t, time.Second, p.Delay(5, nil), "capped at MaxDelay")
	assert.Equal(t, 100*time.Millisecond, p.Delay(0, nil), "attempt < 1 treated as first")
}

func TestBackoffPolicy_Jitter(t *testing.T) {
	p := BackoffPolicy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
		Multiplier:  2,
		Jitter:      0.5,
	}

	assert.Equal(t, 50*time.Millisecond, p.Delay(1, fixedRand(0)))
	assert.Equal(t, 100*time.Millisecond, p.Delay(1, fixedRand(0.5)))
	assert.Equal(t, 125*time.Millisecond, p.Delay(1, fixedRand(0.75)))

	// Jitter never pushes past MaxDelay
	p.BaseDelay = 900 * time.Millisecond
	assert.Equal(t, time.Second, p.Delay(1, fixedRand(0.99)))
}

func TestBackoffPolicy_Schedule(t *testing.T) {
	p := BackoffPolicy{MaxAttempts: 4, BaseDelay: 10 * time.Millisecond, Multiplier: 3}
	assert.Equal(t, []time.Duration{
		10 * time.Millisecond,
		30 * time.Millisecond,
		90 * time.Millisecond,
	}, p.Schedule(nil))

	assert.Empty(t, BackoffPolicy{}.Schedule(nil), "zero policy makes a single attempt")
}

func TestBackoffPolicy_Normalize(t *testing.T) {
	p := BackoffPolicy{MaxAttempts: -1, Multiplier: 0.5, Jitter: 3, BaseDelay: -time.Second}.normalize()
	assert.Equal(t, 1, p.MaxAttempts)
	assert.Equal(t, 1.0, p.Multiplier)
	assert.Equal(t, 1.0, p.Jitter)
	assert.Equal(t, time.Duration(0), p.BaseDelay)
}

func TestRetryWithBackoff(t *testing.T) {
	fast := BackoffPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2}

	t.Run("succeeds after transient errors", func(t *testing.T) {
		calls := 0
		result, err := retryWithBackoff(context.Background(), fast, nil, func() (string, error) {
			calls++
			if calls < 3 {
				return "", fmt.Errorf("transient error")
			}
			return "success", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "success", result)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		_, err := retryWithBackoff(context.Background(), fast, nil, func() (int, error) {
			calls++
			return 0, fmt.Errorf("attempt %d", calls)
		})
		require.Error(t, err)
		assert.Equal(t, "attempt 3", err.Error())
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent errors are not retried", func(t *testing.T) {
		permanent := []error{
			ErrInvalidInput,
			fmt.Errorf("wrapped: %w", ErrEmptyText),
			gobreaker.ErrOpenState,
			&APIError{StatusCode: http.StatusUnauthorized},
		}
		for _, perr := range permanent {
			calls := 0
			_, err := retryWithBackoff(context.Background(), fast, nil, func() (int, error) {
				calls++
				return 0, perr
			})
			assert.ErrorIs(t, err, perr)
			assert.Equal(t, 1, calls, "error %v should not be retried", perr)
		}
	})

	t.Run("rate limits are retried", func(t *testing.T) {
		calls := 0
		_, err := retryWithBackoff(context.Background(), fast, nil, func() (int, error) {
			calls++
			return 0, &APIError{StatusCode: http.StatusTooManyRequests}
		})
		assert.Error(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("context cancellation stops retries", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		slow := BackoffPolicy{MaxAttempts: 5, BaseDelay: time.Hour, Multiplier: 1}

		calls := 0
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		_, err := retryWithBackoff(ctx, slow, nil, func() (int, error) {
			calls++
			return 0, errors.New("boom")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}
