package httpclient

import (
	"errors"
	"fmt"
	"time"
)

// RetryableError is returned when retries were exhausted on a
// retryable status.
type RetryableError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *RetryableError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("HTTP %d: %s (retry after %v)", e.StatusCode, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsThrottled reports whether err carries an exhausted rate-limit retry.
func IsThrottled(err error) bool {
	var re *RetryableError
	return errors.As(err, &re) && re.StatusCode == 429
}
