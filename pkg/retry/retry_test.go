package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetrier(opts ...Option) *Retrier {
	base := []Option{
		WithMaxAttempts(3),
		WithInitialDelay(time.Millisecond),
		WithMaxDelay(5 * time.Millisecond),
		WithJitter(0),
	}
	return New(append(base, opts...)...)
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := fastRetrier().Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesRetryableUntilSuccess(t *testing.T) {
	boom := errors.New("transient")
	calls := 0
	err := fastRetrier().Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(boom)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustionReturnsUnwrappedError(t *testing.T) {
	boom := errors.New("still down")
	calls := 0
	err := fastRetrier().Do(context.Background(), func(context.Context) error {
		calls++
		return Retryable(boom)
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	boom := errors.New("bad input")
	calls := 0
	err := fastRetrier().Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(boom)
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDo_NonRetryableErrorNotRetriedByDefault(t *testing.T) {
	boom := errors.New("plain error")
	calls := 0
	err := fastRetrier().Do(context.Background(), func(context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDo_RetryIfOverridesDefault(t *testing.T) {
	boom := errors.New("plain error")
	calls := 0
	err := fastRetrier(WithRetryIf(func(error) bool { return true })).
		Do(context.Background(), func(context.Context) error {
			calls++
			return boom
		})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestDo_CanceledContextReturnsLastError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	boom := errors.New("transient")
	calls := 0
	err := fastRetrier().Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return Retryable(boom)
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDo_OnRetryCallback(t *testing.T) {
	var attempts []int
	_ = fastRetrier(WithOnRetry(func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	})).Do(context.Background(), func(context.Context) error {
		return Retryable(errors.New("transient"))
	})
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestRetrierDoWithData(t *testing.T) {
	r := fastRetrier(WithRetryIf(func(error) bool { return true }))
	calls := 0
	got, err := RetrierDoWithData(context.Background(), r, func(context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestDoWithData_PropagatesError(t *testing.T) {
	boom := errors.New("broken")
	_, err := DoWithData(context.Background(), func(context.Context) (string, error) {
		return "", Permanent(boom)
	}, WithMaxAttempts(3), WithInitialDelay(time.Millisecond), WithJitter(0))
	assert.ErrorIs(t, err, boom)
}

func TestCalculateDelay_BackoffAndCap(t *testing.T) {
	r := New(
		WithInitialDelay(10*time.Millisecond),
		WithMultiplier(2.0),
		WithMaxDelay(25*time.Millisecond),
		WithJitter(0),
	)
	assert.Equal(t, 10*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 20*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, 25*time.Millisecond, r.calculateDelay(3))
}

func TestRetryableNilIsNil(t *testing.T) {
	assert.NoError(t, Retryable(nil))
	assert.NoError(t, Permanent(nil))
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsPermanent(nil))
}
