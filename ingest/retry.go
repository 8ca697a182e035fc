package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"datasearch/logutils"
)

// ErrEndOfData signals a clean end of a paginated listing (404-equivalent).
// It is not a failure: it short-circuits both retrying and pagination.
var ErrEndOfData = errors.New("end of data")

// StatusError is a non-2xx response from a provider.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// statusToError maps a response code to the shared error taxonomy.
func statusToError(code int, url string) error {
	if code >= 200 && code < 300 {
		return nil
	}
	if code == 404 {
		return ErrEndOfData
	}
	return &StatusError{Code: code, URL: url}
}

// Retryable is the single failure classification shared by all fetchers:
// connect/timeout errors and 5xx responses are retryable, everything else
// propagates immediately.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, ErrEndOfData) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// RetryPolicy wraps a single network call with bounded exponential backoff.
// The zero value is unusable; construct with DefaultRetryPolicy and adjust.
type RetryPolicy struct {
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration

	// Sleep is injectable for tests. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		MinBackoff:  2 * time.Second,
		MaxBackoff:  10 * time.Second,
	}
}

// Do executes op, retrying retryable failures with backoff(attempt) waits, up
// to MaxAttempts. The last failure propagates on exhaustion. ErrEndOfData and
// fatal failures propagate without retrying.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}
		delay := p.backoff(attempt)
		logutils.Log.WithFields(logutils.Fields{
			"attempt": attempt,
			"delay":   delay,
		}).Warnf("retryable fetch failure: %v", lastErr)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

// backoff returns MinBackoff doubled per attempt, capped at MaxBackoff.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.MinBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
