package resilience

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const (
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3
	// DefaultBaseDelay is the delay before the first retry; it doubles per retry.
	DefaultBaseDelay = time.Second
)

// StatusCoder is implemented by errors that carry an HTTP-like status.
type StatusCoder interface {
	StatusCode() int
}

// Policy configures Do. The zero value is not useful; start from DefaultPolicy.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration

	// Sleep waits between attempts. Tests replace it to record delays.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is invoked before each wait.
	OnRetry func(retry int, delay time.Duration, err error)
	// Retryable classifies failures. Nil means IsRetryable.
	Retryable func(err error) bool
}

// DefaultPolicy returns 3 retries at 1s, 2s and 4s.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
	}
}

// Delay returns the wait before retry number retry (0-based).
func (p Policy) Delay(retry int) time.Duration {
	return p.BaseDelay * time.Duration(1<<retry)
}

// IsRetryable reports whether err carries a 429 or 5xx status.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var sc StatusCoder
	if !errors.As(err, &sc) {
		return false
	}
	status := sc.StatusCode()
	return status == http.StatusTooManyRequests || (status >= 500 && status < 600)
}

// Do runs op, retrying retryable failures with exponential backoff. Any
// other failure, or the last failure once retries are exhausted, is returned
// unchanged. Idempotency is not considered: every wrapped call is retried the
// same way.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}
	for retry := 0; ; retry++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if retry >= p.MaxRetries || !retryable(err) {
			return result, err
		}
		delay := p.Delay(retry)
		if p.OnRetry != nil {
			p.OnRetry(retry, delay, err)
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			var zero T
			return zero, sleepErr
		}
	}
}

// DoErr is Do for operations without a result.
func DoErr(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
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

// RetryAll treats every failure as retryable.
func RetryAll(error) bool { return true }
