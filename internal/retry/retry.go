// Package retry runs an operation under a bounded attempt budget with a
// configurable backoff schedule.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Policy describes how an operation is retried. The zero value makes a single
// attempt.
type Policy struct {
	MaxAttempts int
	Backoff     Backoff

	// Retryable decides whether err is worth another attempt. Nil retries
	// every error.
	Retryable func(err error) bool

	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)

	// Sleep defaults to a context-aware timer.
	Sleep Sleeper
}

// Default is five attempts with 15s..120s exponential backoff.
func Default() Policy {
	return Policy{MaxAttempts: 5, Backoff: Exponential(15*time.Second, 120*time.Second)}
}

// Chained is five attempts waiting 15s, 30s, then 45s..120s exponential.
func Chained() Policy {
	return Policy{
		MaxAttempts: 5,
		Backoff: Chain(
			Fixed(15*time.Second),
			Fixed(30*time.Second),
			Exponential(45*time.Second, 120*time.Second),
		),
	}
}

// Do runs op until it succeeds, the attempt budget is spent, Retryable
// rejects the error or ctx is cancelled. The last error is returned as-is so
// callers can inspect it with errors.As.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (retry aborted: %v)", lastErr, err)
			}
			return err
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, lastErr, wait)
		}
		if err := sleep(ctx, wait); err != nil {
			return fmt.Errorf("%w (retry aborted: %v)", lastErr, err)
		}
	}
	return lastErr
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Recorder is a Sleeper that records waits instead of sleeping. Useful in
// tests.
type Recorder struct {
	Waits []time.Duration
}

// Sleep implements Sleeper.
func (r *Recorder) Sleep(_ context.Context, d time.Duration) error {
	r.Waits = append(r.Waits, d)
	return nil
}
