package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(_ context.Context, _ time.Duration) error { return nil }

func testPolicy(maxAttempts int) RetryPolicy {
	p := DefaultRetryPolicy()
	p.MaxAttempts = maxAttempts
	p.Sleep = noSleep
	return p
}

func TestStatusToError(t *testing.T) {
	assert.NoError(t, statusToError(200, "u"))
	assert.NoError(t, statusToError(204, "u"))
	assert.ErrorIs(t, statusToError(404, "u"), ErrEndOfData)

	err := statusToError(503, "https://example.com/x")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 503, statusErr.Code)
	assert.Contains(t, statusErr.Error(), "503")
}

func TestRetryableClassification(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(ErrEndOfData))
	assert.False(t, Retryable(&StatusError{Code: 401}))
	assert.False(t, Retryable(errors.New("parse failure")))
	assert.True(t, Retryable(&StatusError{Code: 500}))
	assert.True(t, Retryable(&StatusError{Code: 503}))
	assert.True(t, Retryable(context.DeadlineExceeded))
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := testPolicy(3).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &StatusError{Code: 502}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := testPolicy(3).Do(context.Background(), func() error {
		calls++
		return &StatusError{Code: 500}
	})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 3, calls)
}

func TestDoFatalErrorPropagatesImmediately(t *testing.T) {
	calls := 0
	err := testPolicy(3).Do(context.Background(), func() error {
		calls++
		return &StatusError{Code: 401}
	})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 401, statusErr.Code)
	assert.Equal(t, 1, calls)
}

func TestDoEndOfDataShortCircuits(t *testing.T) {
	calls := 0
	err := testPolicy(3).Do(context.Background(), func() error {
		calls++
		return ErrEndOfData
	})
	assert.ErrorIs(t, err, ErrEndOfData)
	assert.Equal(t, 1, calls)
}

func TestDoHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := testPolicy(3).Do(ctx, func() error {
		t.Fatal("op must not run with a canceled context")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, MinBackoff: 2 * time.Second, MaxBackoff: 10 * time.Second}
	assert.Equal(t, 2*time.Second, p.backoff(1))
	assert.Equal(t, 4*time.Second, p.backoff(2))
	assert.Equal(t, 8*time.Second, p.backoff(3))
	assert.Equal(t, 10*time.Second, p.backoff(4))
	assert.Equal(t, 10*time.Second, p.backoff(5))
}
