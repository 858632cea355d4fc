// Package retry provides capped exponential backoff for external
// service calls.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Do runs fn up to attempts times. After each failure it sleeps
// base << attempt, capped at maxDelay, before trying again. Context
// cancellation aborts between attempts. The last error is returned
// once attempts are exhausted.
func Do(ctx context.Context, attempts int, base, maxDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var p permanentError
		if errors.As(lastErr, &p) {
			return p.err
		}

		if attempt == attempts-1 {
			break
		}

		delay := base << attempt
		if delay > maxDelay {
			delay = maxDelay
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

// Stop marks err as permanent so Do returns it without further
// attempts. Use it for failures a repeat call cannot fix, like 4xx
// responses.
func Stop(err error) error {
	return permanentError{err: err}
}

type permanentError struct {
	err error
}

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }
