// Package retry implements a reusable retry mechanism with fixed or
// exponential-backoff delays and configurable exhaustion behavior.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// jitterMax is the upper bound of the random delay added to each backoff
// step to avoid synchronized retries across concurrent callers.
const jitterMax = 100 * time.Millisecond

// Retrier re-executes a fallible operation up to MaxAttempts times.
//
// A Retrier holds no per-call state: the attempt counter is local to each
// invocation, so a single Retrier can safely wrap many operations and be
// called from many goroutines.
type Retrier struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// Delay is the base delay between attempts.
	Delay time.Duration

	// RaiseOnMaxAttempts controls what happens once attempts are
	// exhausted. When true the last error is returned; when false the
	// wrapped operation returns the zero value and a nil error.
	RaiseOnMaxAttempts bool

	// UseExponentialBackoff grows the delay geometrically per attempt.
	UseExponentialBackoff bool

	// ExponentialBackoffBase is the growth factor. Must be > 1.
	ExponentialBackoffBase float64

	// MaxDelay clamps the computed delay.
	MaxDelay time.Duration

	// OnRetry, if set, is called with the causing error before each
	// retry. It is a side-effect hook only and must not alter control
	// flow.
	OnRetry func(err error)
}

// New returns a Retrier with the default policy: 3 attempts, exponential
// backoff starting at 1 second, clamped at 32 seconds, returning the last
// error on exhaustion.
func New() Retrier {
	return Retrier{
		MaxAttempts:            3,
		Delay:                  time.Second,
		RaiseOnMaxAttempts:     true,
		UseExponentialBackoff:  true,
		ExponentialBackoffBase: 2.0,
		MaxDelay:               32 * time.Second,
	}
}

// maxAttempts returns the normalized attempt budget.
func (r Retrier) maxAttempts() int {
	if r.MaxAttempts < 1 {
		return 1
	}
	return r.MaxAttempts
}

// DelayFor computes the delay before the next attempt. attempt is
// 1-indexed at the first retry.
func (r Retrier) DelayFor(attempt int) time.Duration {
	if !r.UseExponentialBackoff {
		return r.Delay
	}

	base := r.ExponentialBackoffBase
	if base <= 1 {
		base = 2.0
	}

	jitter := time.Duration(rand.Float64() * float64(jitterMax))
	delay := time.Duration(float64(r.Delay)*math.Pow(base, float64(attempt-1))) + jitter
	if r.MaxDelay > 0 && delay > r.MaxDelay {
		return r.MaxDelay
	}
	return delay
}

// Do runs op, blocking the calling goroutine between attempts.
func (r Retrier) Do(op func() error) error {
	_, err := Wrap(r, func() (struct{}, error) {
		return struct{}{}, op()
	})()
	return err
}

// DoContext runs op, sleeping under ctx between attempts. Context
// cancellation propagates immediately and is never retried.
func (r Retrier) DoContext(ctx context.Context, op func(context.Context) error) error {
	_, err := WrapContext(r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})(ctx)
	return err
}

// Wrap returns a blocking wrapper around op. The wrapper calls op until
// it succeeds or MaxAttempts is reached; between attempts it sleeps for
// the computed delay.
func Wrap[T any](r Retrier, op func() (T, error)) func() (T, error) {
	return func() (T, error) {
		var zero T

		attempt := 0
		for {
			val, err := op()
			if err == nil {
				return val, nil
			}

			attempt++
			if attempt >= r.maxAttempts() {
				if r.RaiseOnMaxAttempts {
					return zero, err
				}
				return zero, nil
			}

			if r.OnRetry != nil {
				r.OnRetry(err)
			}
			time.Sleep(r.DelayFor(attempt))
		}
	}
}

// WrapContext returns a context-aware wrapper around op. The delay
// between attempts is interruptible: if the context is cancelled during
// the sleep, or the operation itself fails with the context's error, the
// wrapper returns immediately without further attempts.
func WrapContext[T any](r Retrier, op func(context.Context) (T, error)) func(context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		var zero T

		attempt := 0
		for {
			val, err := op(ctx)
			if err == nil {
				return val, nil
			}

			// Cancellation is not a transient failure.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return zero, err
			}

			attempt++
			if attempt >= r.maxAttempts() {
				if r.RaiseOnMaxAttempts {
					return zero, err
				}
				return zero, nil
			}

			if r.OnRetry != nil {
				r.OnRetry(err)
			}
			if serr := sleepContext(ctx, r.DelayFor(attempt)); serr != nil {
				return zero, serr
			}
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
