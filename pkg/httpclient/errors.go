package httpclient

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// RetryableError reports a response the caller may retry. For HTTP 429
// it carries the server-suggested RetryAfter when the response included
// one.
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

// IsRateLimit reports whether err is a rate-limit rejection (HTTP 429).
func IsRateLimit(err error) bool {
	var re *RetryableError
	return errors.As(err, &re) && re.StatusCode == http.StatusTooManyRequests
}
