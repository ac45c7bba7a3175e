package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	maxRetries = 3
	baseDelay  = 2 * time.Millisecond
)

// transientPatterns are matched against error text to classify store errors
// that are worth retrying. Anything else propagates immediately.
var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"timeout",
	"deadlock",
	"too many connections",
	"database is locked",
	"try again",
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// withRetry runs attempt with bounded exponential backoff (2ms, 4ms, 8ms),
// retrying only errors classified as transient. Permanent errors and context
// cancellation return immediately.
func withRetry(ctx context.Context, attempt func() error) error {
	var err error
	for i := 0; i <= maxRetries; i++ {
		err = attempt()
		if err == nil {
			return nil
		}
		if !isTransient(err) && !errors.Is(err, ErrConcurrentUpdate) {
			return err
		}
		if i < maxRetries {
			delay := baseDelay * time.Duration(1<<i)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("%w: failed after %d attempts: %v", ErrMaxRetriesExceeded, maxRetries+1, err)
}
