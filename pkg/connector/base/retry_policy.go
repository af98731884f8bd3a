package base

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/Matatika/tap-shopify/pkg/config"
	"github.com/Matatika/tap-shopify/pkg/errors"
)

// RetryPolicy defines retry behavior
type RetryPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RandomizeFactor float64

	// OnRetry is called before each wait, e.g. for logging.
	OnRetry func(attempt int, delay time.Duration, err error)

	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryPolicy creates a new retry policy with exponential backoff
func NewRetryPolicy(maxAttempts int, initialDelay time.Duration) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:     maxAttempts,
		InitialDelay:    initialDelay,
		MaxDelay:        5 * time.Minute,
		Multiplier:      2.0,
		RandomizeFactor: 0.25,
	}
}

// RetryPolicyFromConfig builds a policy from the reliability settings.
// RetryAttempts counts retries, so the policy makes one more attempt.
func RetryPolicyFromConfig(cfg config.ReliabilityConfig) *RetryPolicy {
	rp := NewRetryPolicy(cfg.RetryAttempts+1, cfg.RetryDelay)
	if cfg.MaxRetryDelay > 0 {
		rp.MaxDelay = cfg.MaxRetryDelay
	}
	if cfg.RetryMultiplier >= 1 {
		rp.Multiplier = cfg.RetryMultiplier
	}
	return rp
}

// Execute runs a function with the retry policy
func (rp *RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	return rp.ExecuteWithCondition(ctx, fn, func(error) bool { return true })
}

// ExecuteWithCondition runs a function with retry only if condition is met.
// An error carrying a "retry_after" duration detail overrides the computed
// backoff for that attempt, capped at MaxDelay.
func (rp *RetryPolicy) ExecuteWithCondition(ctx context.Context, fn func() error, shouldRetry func(error) bool) error {
	var lastErr error
	attempts := rp.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !shouldRetry(err) {
			return err
		}

		// Don't retry on the last attempt
		if attempt == attempts-1 {
			break
		}

		delay := rp.calculateDelay(attempt)
		if d, ok := retryAfter(err); ok {
			delay = d
			if rp.MaxDelay > 0 && delay > rp.MaxDelay {
				delay = rp.MaxDelay
			}
		}
		if rp.OnRetry != nil {
			rp.OnRetry(attempt+1, delay, err)
		}

		if err := rp.wait(ctx, delay); err != nil {
			return errors.Wrap(err, errors.ErrorTypeTimeout, "retry cancelled")
		}
	}

	if attempts == 1 {
		return lastErr
	}
	return errors.Wrap(lastErr, typeOf(lastErr), "all attempts failed").
		WithDetail("attempts", attempts)
}

func (rp *RetryPolicy) wait(ctx context.Context, d time.Duration) error {
	if rp.sleep != nil {
		return rp.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// calculateDelay calculates the delay for a given attempt
func (rp *RetryPolicy) calculateDelay(attempt int) time.Duration {
	// Base delay calculation with exponential backoff
	delay := float64(rp.InitialDelay) * math.Pow(rp.Multiplier, float64(attempt))

	// Apply max delay cap
	if rp.MaxDelay > 0 && delay > float64(rp.MaxDelay) {
		delay = float64(rp.MaxDelay)
	}

	// Apply randomization factor (jitter)
	if rp.RandomizeFactor > 0 {
		delta := delay * rp.RandomizeFactor
		minDelay := delay - delta
		maxDelay := delay + delta

		delay = minDelay + (rand.Float64() * (maxDelay - minDelay)) //nolint:gosec // jitter needs no crypto randomness
	}

	return time.Duration(delay)
}

// GetDelay returns the delay for a specific attempt (for testing/preview)
func (rp *RetryPolicy) GetDelay(attempt int) time.Duration {
	return rp.calculateDelay(attempt)
}

// Clone creates a copy of the retry policy
func (rp *RetryPolicy) Clone() *RetryPolicy {
	c := *rp
	return &c
}

// WithMaxAttempts returns a new policy with updated max attempts
func (rp *RetryPolicy) WithMaxAttempts(attempts int) *RetryPolicy {
	policy := rp.Clone()
	policy.MaxAttempts = attempts
	return policy
}

// WithRandomization returns a new policy with updated randomization
func (rp *RetryPolicy) WithRandomization(factor float64) *RetryPolicy {
	policy := rp.Clone()
	policy.RandomizeFactor = factor
	return policy
}

// NoRetryPolicy returns a policy that doesn't retry
func NoRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: 1,
	}
}

func retryAfter(err error) (time.Duration, bool) {
	var e *errors.Error
	if !errors.As(err, &e) {
		return 0, false
	}
	v, ok := e.Detail("retry_after")
	if !ok {
		return 0, false
	}
	d, ok := v.(time.Duration)
	return d, ok
}

func typeOf(err error) errors.ErrorType {
	var e *errors.Error
	if errors.As(err, &e) {
		return e.Type
	}
	return errors.ErrorTypeInternal
}
