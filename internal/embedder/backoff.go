package embedder

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/sony/gobreaker"
)

// BackoffPolicy decides how often and how long to wait between embedding
// attempts. Delay is a pure function so the schedule can be tested without
// doing any I/O.
type BackoffPolicy struct {
	MaxAttempts int           // Total attempts, including the first
	BaseDelay   time.Duration // Delay after the first failure
	MaxDelay    time.Duration // Upper bound for any delay
	Multiplier  float64       // Growth factor per attempt
	Jitter      float64       // Fraction of the delay randomized, in [0, 1]
}

// DefaultBackoffPolicy returns sensible defaults for API retry
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		MaxAttempts: MaxRetries,
		BaseDelay:   time.Duration(InitialBackoffMs) * time.Millisecond,
		MaxDelay:    time.Duration(MaxBackoffMs) * time.Millisecond,
		Multiplier:  BackoffMultiplier,
		Jitter:      DefaultJitter,
	}
}

// normalize fills in values that would make the policy meaningless
func (p BackoffPolicy) normalize() BackoffPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Jitter > 1 {
		p.Jitter = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	return p
}

// Delay returns the wait after the given failed attempt (1-based). rnd must
// return values in [0, 1); nil disables jitter. With jitter j the delay is
// spread uniformly over [d*(1-j), d*(1+j)), then capped at MaxDelay.
func (p BackoffPolicy) Delay(attempt int, rnd func() float64) time.Duration {
	p = p.normalize()
	if attempt < 1 {
		attempt = 1
	}

	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}

	if p.Jitter > 0 && rnd != nil {
		d *= 1 - p.Jitter + 2*p.Jitter*rnd()
	}

	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

// Schedule returns every delay the policy would wait for, in order
func (p BackoffPolicy) Schedule(rnd func() float64) []time.Duration {
	p = p.normalize()
	delays := make([]time.Duration, 0, p.MaxAttempts-1)
	for attempt := 1; attempt < p.MaxAttempts; attempt++ {
		delays = append(delays, p.Delay(attempt, rnd))
	}
	return delays
}

// isPermanent reports errors that retrying cannot fix
func isPermanent(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return !apiErr.Temporary()
	}

	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyText) ||
		errors.Is(err, ErrBatchTooLarge) ||
		errors.Is(err, ErrNoProviderEnabled) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests)
}

// retryWithBackoff calls fn until it succeeds, fails permanently, the policy
// runs out of attempts or ctx is done.
func retryWithBackoff[T any](ctx context.Context, policy BackoffPolicy, rnd func() float64, fn func() (T, error)) (T, error) {
	policy = policy.normalize()

	var lastErr error
	var zero T

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if isPermanent(err) || attempt == policy.MaxAttempts {
			break
		}

		timer := time.NewTimer(policy.Delay(attempt, rnd))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, lastErr
}
