package coordinator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type classified struct {
	retryable bool
}

func (e classified) Error() string   { return fmt.Sprintf("classified(retryable=%t)", e.retryable) }
func (e classified) Retryable() bool { return e.retryable }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func fastPolicy(maxRetry int) Policy {
	return Policy{MaxRetry: maxRetry, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func TestPolicy_Backoff(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	assert.Equal(t, 100*time.Millisecond, p.Backoff(0))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 800*time.Millisecond, p.Backoff(3))
	assert.Equal(t, time.Second, p.Backoff(4))
	assert.Equal(t, time.Second, p.Backoff(60))
	assert.Equal(t, 100*time.Millisecond, p.Backoff(-1))
}

func TestPolicy_Do_SucceedsAfterTransientFailures(t *testing.T) {
	p := fastPolicy(3)

	for k := 0; k <= p.MaxRetry; k++ {
		t.Run(fmt.Sprintf("fails %d times", k), func(t *testing.T) {
			calls := 0
			attempts, err := p.Do(context.Background(), func(context.Context) error {
				calls++
				if calls <= k {
					return classified{retryable: true}
				}
				return nil
			})

			require.NoError(t, err)
			assert.Equal(t, k+1, attempts)
			assert.Equal(t, k+1, calls)
		})
	}
}

func TestPolicy_Do_Exhausted(t *testing.T) {
	p := fastPolicy(2)

	calls := 0
	attempts, err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return classified{retryable: true}
	})

	require.Error(t, err)
	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
	assert.False(t, IsRetryable(err), "an exhausted error must not be retried again")
}

func TestPolicy_Do_NonRetryableStopsImmediately(t *testing.T) {
	p := fastPolicy(5)

	calls := 0
	attempts, err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return classified{retryable: false}
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestPolicy_Do_CancelledDuringBackoff(t *testing.T) {
	p := Policy{MaxRetry: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := p.Do(ctx, func(context.Context) error {
			calls++
			return classified{retryable: true}
		})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"classified retryable", classified{retryable: true}, true},
		{"classified permanent", classified{retryable: false}, false},
		{"wrapped retryable", fmt.Errorf("failed to delete; %w", classified{retryable: true}), true},
		{"network timeout", timeoutErr{}, true},
		{"deadline", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, false},
		{"skipped", ErrSkipped, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
