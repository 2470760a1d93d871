package notify

import (
	"context"
	"math"
	"time"
)

const maxRetries = 3

// retry calls fn until it succeeds, fn reports a non-retryable error, or
// maxRetries is exhausted. wait returns the backoff for a retryable error
// and false for any other error.
func retry(ctx context.Context, fn func() error, wait func(err error, attempt int) (time.Duration, bool)) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		d, ok := wait(err, attempt)
		if !ok || attempt == maxRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
	return nil
}

func backoff(base time.Duration, attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * base
}
