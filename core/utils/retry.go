package utils

import (
	"context"
	"time"
)

const (
	retryAttempts = 3
	retryBaseWait = 200 * time.Millisecond
)

// Retry runs fn up to three times with exponential backoff. Transient data
// store I/O errors are retried; the final error is returned so callers can
// degrade to an empty result instead of failing the request.
func Retry(ctx context.Context, fn func() error) error {
	var err error
	wait := retryBaseWait
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == retryAttempts-1 {
			break
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		wait *= 2
	}
	return err
}
