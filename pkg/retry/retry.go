// Package retry runs remote calls under a fixed-interval retry budget
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrBudgetExhausted marks an error returned after every allowed attempt failed
var ErrBudgetExhausted = errors.New("retry budget exhausted")

// Policy configures a retried call. Budget is the number of retries after the first attempt.
type Policy struct {
	Budget      int
	Interval    time.Duration
	IsRetryable func(error) bool
	// OnRetry is called after a retryable failure, before sleeping
	OnRetry func(attempt int, err error)
}

// ExhaustedError wraps the last failure once the budget is spent
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrBudgetExhausted.Error(), e.Attempts, e.Err)
}

// Unwrap exposes the underlying failure
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Is matches ErrBudgetExhausted
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrBudgetExhausted
}

// Do calls fn until it succeeds, returns a non-retryable error, or the budget is spent.
// It makes at most Budget+1 attempts and sleeps Interval between them.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, fn(ctx, attempt)
	})
	return err
}

// DoValue is Do for calls that return a value
func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	budget := max(p.Budget, 0)
	isRetryable := p.IsRetryable
	if isRetryable == nil {
		isRetryable = func(error) bool { return true }
	}

	var lastErr error
	for attempt := 1; attempt <= budget+1; attempt++ {
		value, err := fn(ctx, attempt)
		if err == nil {
			return value, nil
		}
		if !isRetryable(err) {
			return zero, err
		}
		lastErr = err

		if attempt > budget {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if err := sleep(ctx, p.Interval); err != nil {
			return zero, errors.Wrap(err, lastErr.Error())
		}
	}

	return zero, &ExhaustedError{Attempts: budget + 1, Err: lastErr}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
