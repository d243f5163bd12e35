package gemini

import (
	"context"
	"time"

	"github.com/smashers-ai/smashers/internal/apperror"
)

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryPolicy retries rate-limited calls with exponential backoff.
// Attempt n (zero based) is followed by a wait of BaseDelay * 2^n.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Sleep      SleepFunc
}

// DefaultRetryPolicy waits 1s, 2s and 4s before giving up
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Sleep:      SleepContext,
	}
}

// NoRetry makes a single attempt
func NoRetry() RetryPolicy {
	return RetryPolicy{}
}

// SleepContext is the real sleeper
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Delay returns the wait after the given zero-based attempt
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(1<<uint(attempt))
}

// Do runs fn until it succeeds, fails with anything other than RateLimited,
// or the retry budget is spent. The last RateLimited error is returned on exhaustion.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	for attempt := 0; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if apperror.KindOf(err) != apperror.KindRateLimited || attempt >= p.MaxRetries {
			return err
		}
		if err := sleep(ctx, p.Delay(attempt)); err != nil {
			return err
		}
	}
}
