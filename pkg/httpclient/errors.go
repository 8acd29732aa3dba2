package httpclient

import (
	"errors"
	"fmt"
	"time"
)

// ErrTimeout matches any *TimeoutError via errors.Is.
var ErrTimeout = errors.New("request timed out")

// TimeoutError is returned when a single attempt exceeds its timeout.
type TimeoutError struct {
	URL     string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %s timed out after %s", e.URL, e.Timeout)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request %s: status %d", e.URL, e.StatusCode)
}

// Retryable is false for 4xx responses: bad input will not heal on retry.
func (e *StatusError) Retryable() bool {
	return e.StatusCode < 400 || e.StatusCode >= 500
}
