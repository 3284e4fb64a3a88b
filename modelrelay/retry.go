package modelrelay

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy governs how transient model-call failures are reattempted:
// exponential backoff from BaseDelay up to a MaxDelay ceiling, optionally
// jittered so concurrent callers spread out.
type RetryPolicy struct {
	// MaxRetries is how many reattempts follow the first call.
	MaxRetries int
	// BaseDelay is the first backoff wait, in seconds.
	BaseDelay float64
	// MaxDelay caps every backoff wait, in seconds.
	MaxDelay float64
	// BackoffMultiplier scales the wait between consecutive attempts.
	BackoffMultiplier float64
	// Jitter randomizes each wait within +/-50% of its nominal value.
	Jitter bool
	// OnRetry, when set, observes each reattempt before its wait begins.
	OnRetry func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy is the relay's production tuning: four reattempts
// starting at half a second, doubling toward a 30 second ceiling, jittered.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        4,
		BaseDelay:         0.5,
		MaxDelay:          30.0,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// Delay returns the backoff wait preceding reattempt n (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := math.Min(p.BaseDelay*math.Pow(p.BackoffMultiplier, float64(attempt)), p.MaxDelay)
	if p.Jitter {
		delay = delay * (0.5 + rand.Float64())
	}
	return time.Duration(delay * float64(time.Second))
}

// Retry runs fn until it succeeds, a terminal error surfaces, or the policy's
// attempts are spent. Authentication and quota failures propagate on the spot;
// everything classified retryable waits out the backoff and goes again.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	result, err := fn(ctx)
	if err == nil {
		return result, nil
	}

	for attempt := 0; attempt < policy.MaxRetries; attempt++ {
		if !IsRetryable(err) {
			return zero, err
		}

		// A rate-limit Retry-After overrides the backoff; one beyond the
		// ceiling is not worth waiting out.
		delay := policy.Delay(attempt)
		if rl, ok := err.(*RateLimitError); ok && rl.RetryAfter != nil {
			retryDelay := time.Duration(*rl.RetryAfter * float64(time.Second))
			if retryDelay > time.Duration(policy.MaxDelay*float64(time.Second)) {
				return zero, err
			}
			delay = retryDelay
		}

		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}

		select {
		case <-ctx.Done():
			return zero, &NetworkError{RelayError: RelayError{Message: "request cancelled during retry", Cause: ctx.Err()}}
		case <-time.After(delay):
		}

		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}
	}

	return zero, err
}
