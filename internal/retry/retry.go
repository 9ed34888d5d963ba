package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Action int

const (
	Stop  Action = iota // permanent error, abort immediately
	Retry               // transient error, try again
)

// Policy declares how an operation is retried. A zero Backoff means attempts
// follow each other immediately, bounded only by MaxAttempts; a non-zero
// Backoff doubles after every attempt. AttemptTimeout caps each individual
// attempt so a hung upstream call never blocks the caller past its deadline.
type Policy struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	Backoff        time.Duration
	OnRetry        func(attempt int, err error)
}

type Classify func(err error) Action
type Operation[T any] func(ctx context.Context) (T, error)
type VoidOperation func(ctx context.Context) error

// Do runs op under the policy, classifying each failure as permanent or
// transient. Permanent failures are wrapped in *PermanentError and returned
// without further attempts.
func Do[T any](ctx context.Context, p Policy, classify Classify, op Operation[T]) (T, error) {
	var zero T
	backoff := p.Backoff

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		val, err := runAttempt(ctx, p.AttemptTimeout, op)
		if err == nil {
			return val, nil
		}

		if classify(err) == Stop {
			return zero, &PermanentError{Err: err}
		}

		if attempt == p.MaxAttempts {
			return zero, fmt.Errorf("failed after %d attempts: %w", p.MaxAttempts, err)
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		if backoff > 0 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
			}
		} else if ctx.Err() != nil {
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}

	panic("unreachable: MaxAttempts must be >= 1")
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, op Operation[T]) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(attemptCtx)
}

func DoVoid(ctx context.Context, p Policy, classify Classify, op VoidOperation) error {
	_, err := Do(ctx, p, classify, func(ctx context.Context) (struct{}, error) { return struct{}{}, op(ctx) })
	return err
}

// IsAttemptTimeout reports whether err is the expiry of a per-attempt deadline.
func IsAttemptTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }
