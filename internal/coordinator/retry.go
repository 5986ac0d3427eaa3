// Package coordinator bounds concurrent per-document operations and retries
// transient failures with exponential backoff.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"time"
)

// Default retry settings.
const (
	DefaultMaxRetry  = 3
	DefaultBaseDelay = 500 * time.Millisecond
	DefaultMaxDelay  = 30 * time.Second
)

// Retryable is implemented by errors that know whether retrying can help.
type Retryable interface {
	Retryable() bool
}

// IsRetryable reports whether err is a transient failure worth retrying.
// Errors that do not classify themselves are retried only when they are
// network timeouts.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var r Retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

// ExhaustedError is returned when every allowed attempt failed transiently.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts; %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Retryable reports false: the retry budget is spent.
func (e *ExhaustedError) Retryable() bool { return false }

// Policy describes how transient failures are retried.
type Policy struct {
	// MaxRetry is the number of retries after the first attempt.
	MaxRetry int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration
}

// DefaultPolicy returns the retry policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetry:  DefaultMaxRetry,
		BaseDelay: DefaultBaseDelay,
		MaxDelay:  DefaultMaxDelay,
	}
}

// Backoff returns the delay before retry number attempt+1: BaseDelay * 2^attempt,
// capped at MaxDelay.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if delay > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the retry
// budget is spent. It returns the number of attempts made. Backoff waits are
// interrupted when ctx is cancelled.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	maxRetry := max(p.MaxRetry, 0)

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return attempt + 1, nil
		}

		if !IsRetryable(err) {
			return attempt + 1, err
		}

		if attempt >= maxRetry {
			return attempt + 1, &ExhaustedError{Attempts: attempt + 1, Err: err}
		}

		timer := time.NewTimer(p.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt + 1, fmt.Errorf("retry interrupted after %d attempts (last error: %v); %w", attempt+1, err, ctx.Err())
		case <-timer.C:
		}
	}
}
