package retry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// permanentError marks an error that should abort Linear immediately
// instead of spending another attempt on it.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so Linear returns it straight away, skipping its
// remaining attempts and backoff delay. Mirrors cenkalti/backoff.Permanent,
// used the same way by ratelimit.Controller.RetryTransport.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Linear executes op with up to maxAttempts tries, sleeping attempt*step
// between tries (e.g. step=2s gives 2s, 4s, 6s for three retries). Grounded
// on the media worker's BASE_BACKOFF_SECS*attempt schedule: a failed
// download is retried with linearly increasing backoff rather than the
// exponential schedule WithRetry uses for gateway calls.
func Linear(ctx context.Context, name string, op Operation, maxAttempts int, step time.Duration) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * step
			log.Printf("[!] Retry %d/%d for %s after %v...", attempt, maxAttempts, name, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := op()
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err
		log.Printf("[!] Error during %s (attempt %d/%d): %v", name, attempt, maxAttempts, err)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, maxAttempts, lastErr)
}
