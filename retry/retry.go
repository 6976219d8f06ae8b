// Package retry runs an operation a bounded number of times with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

var ErrMaxAttemptsExceeded = errors.New("max attempts exceeded")

// Policy bounds the attempts. Zero backoff retries immediately.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.InitialBackoff < 0 || p.MaxBackoff < 0 {
		return errors.New("backoff cannot be negative")
	}
	return nil
}

// Backoff is the wait before attempt+1, attempt starting at 1.
func (p Policy) Backoff(attempt int) time.Duration {
	if p.InitialBackoff == 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 2
	}
	d := float64(p.InitialBackoff)
	for i := 1; i < attempt; i++ {
		d *= mult
		if p.MaxBackoff > 0 && d >= float64(p.MaxBackoff) {
			return p.MaxBackoff
		}
	}
	return time.Duration(d)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do calls op until it succeeds, returns a permanent error, the context ends, or attempts run out.
// Exhaustion returns an error matching both ErrMaxAttemptsExceeded and the last error.
func Do(ctx context.Context, policy Policy, logger *zap.Logger, op func(ctx context.Context) error) error {
	if err := policy.Validate(); err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			if attempt > 1 {
				logger.Info("Operation succeeded after retries", zap.Int("attempt", attempt))
			}
			return nil
		}

		if IsPermanent(lastErr) {
			return lastErr
		}

		if attempt == policy.MaxAttempts {
			break
		}

		wait := policy.Backoff(attempt)
		logger.Debug("Retrying operation",
			zap.Error(lastErr),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", policy.MaxAttempts),
			zap.Duration("backoff", wait))

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	logger.Warn("Max attempts exceeded", zap.Error(lastErr), zap.Int("attempts", policy.MaxAttempts))
	return &exhaustedError{attempts: policy.MaxAttempts, last: lastErr}
}

type exhaustedError struct {
	attempts int
	last     error
}

func (e *exhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrMaxAttemptsExceeded, e.attempts, e.last)
}

func (e *exhaustedError) Unwrap() []error {
	return []error{ErrMaxAttemptsExceeded, e.last}
}

// DoValue is Do for operations returning a value.
func DoValue[T any](ctx context.Context, policy Policy, logger *zap.Logger, op func(ctx context.Context) (T, error)) (T, error) {
	var res T
	err := Do(ctx, policy, logger, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		res = v
		return nil
	})
	return res, err
}
