// Package retry repeats calls to external collaborators with exponential
// backoff and jitter.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// RetryableError marks an error as worth another attempt.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable marks err as retryable. A nil err stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err, or anything it wraps, was marked Retryable.
func IsRetryable(err error) bool {
	var r *RetryableError
	return errors.As(err, &r)
}

// Policy describes how often and how fast to retry. Zero fields take the
// defaults noted on each field.
type Policy struct {
	// MaxAttempts counts the first call. Default 3.
	MaxAttempts int

	// BaseDelay is the wait after the first failure. Default 100ms.
	BaseDelay time.Duration

	// MaxDelay caps a single wait before jitter. Default 30s.
	MaxDelay time.Duration

	// Multiplier grows the wait per attempt. Values below 1 mean 2.
	Multiplier float64

	// Jitter spreads each wait by up to this fraction either way. 0 disables.
	Jitter float64

	// ShouldRetry decides whether an error is worth another attempt.
	// Default IsRetryable.
	ShouldRetry func(error) bool

	// OnRetry runs before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = 0
	}
	if p.ShouldRetry == nil {
		p.ShouldRetry = IsRetryable
	}
	return p
}

// Backoff returns the wait after the given failed attempt, starting at 1,
// without jitter.
func (p Policy) Backoff(attempt int) time.Duration {
	p = p.withDefaults()
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

func (p Policy) wait(attempt int) time.Duration {
	d := float64(p.Backoff(attempt))
	if p.Jitter > 0 {
		d += d * p.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(max(d, 0))
}

// Retrier runs operations under a Policy. It is safe for concurrent use.
type Retrier struct {
	policy Policy
}

// New creates a Retrier.
func New(policy Policy) *Retrier {
	return &Retrier{policy: policy.withDefaults()}
}

// Do calls op until it succeeds, returns an error ShouldRetry rejects, or
// runs out of attempts. The returned error has the Retryable marker removed.
// If ctx ends while waiting, the last error is joined with ctx.Err().
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	p := r.policy
	var last error

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		last = unmark(err)
		if attempt >= p.MaxAttempts || !p.ShouldRetry(err) {
			return last
		}

		wait := p.wait(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, last, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(last, ctx.Err())
		case <-timer.C:
		}
	}
}

func unmark(err error) error {
	if r, ok := err.(*RetryableError); ok {
		return r.Err
	}
	return err
}

// WebhookRetrier retries notification webhook calls that were marked
// Retryable, starting at 200ms and doubling.
func WebhookRetrier(maxAttempts int) *Retrier {
	return New(Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2,
		Jitter:      0.2,
	})
}
