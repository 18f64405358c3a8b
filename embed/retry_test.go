package embed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithBackoff_Success(t *testing.T) {
	calls := 0
	attempts, err := RetryWithBackoff(context.Background(), func() error {
		calls++
		return nil
	}, 3, 10*time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, 1, calls, "should succeed on first try")
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_FailsTwiceThenSucceeds(t *testing.T) {
	calls := 0
	attempts, err := RetryWithBackoff(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("temporary error")
		}
		return nil
	}, 3, time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, 3, calls, "two retries after the first attempt")
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_AllAttemptsFail(t *testing.T) {
	calls := 0
	expectedErr := errors.New("persistent error")
	attempts, err := RetryWithBackoff(context.Background(), func() error {
		calls++
		return expectedErr
	}, 3, time.Millisecond)

	require.Error(t, err)
	assert.Equal(t, expectedErr, err, "should return the original error")
	assert.Equal(t, 3, calls, "should attempt exactly maxAttempts times")
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	cause := errors.New("bad input")
	attempts, err := RetryWithBackoff(context.Background(), func() error {
		calls++
		return Permanent(cause)
	}, 5, time.Millisecond)

	assert.Equal(t, cause, err, "permanent errors are returned unwrapped")
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := RetryWithBackoff(ctx, func() error {
		calls++
		if calls == 2 {
			cancel() // Cancel after second attempt
		}
		return errors.New("error")
	}, 10, 10*time.Millisecond)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled, "should return context.Canceled")
	assert.LessOrEqual(t, calls, 2, "should stop when context is canceled")
}

func TestRetryWithBackoff_ExponentialBackoff(t *testing.T) {
	calls := 0
	var delays []time.Duration
	lastTime := time.Now()

	_, err := RetryWithBackoff(context.Background(), func() error {
		calls++
		if calls > 1 {
			delays = append(delays, time.Since(lastTime))
		}
		lastTime = time.Now()
		if calls < 4 {
			return errors.New("error")
		}
		return nil
	}, 5, 10*time.Millisecond)

	require.NoError(t, err)
	require.Len(t, delays, 3, "should have 3 delays")

	assert.GreaterOrEqual(t, delays[0], 10*time.Millisecond)
	assert.GreaterOrEqual(t, delays[1], 20*time.Millisecond)
	assert.GreaterOrEqual(t, delays[2], 40*time.Millisecond)
}

func TestRetryWithBackoff_InvalidMaxAttempts(t *testing.T) {
	for _, maxAttempts := range []int{0, -1} {
		calls := 0
		attempts, err := RetryWithBackoff(context.Background(), func() error {
			calls++
			return nil
		}, maxAttempts, time.Millisecond)

		assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
		assert.Equal(t, 0, calls)
		assert.Equal(t, 0, attempts)
	}
}
