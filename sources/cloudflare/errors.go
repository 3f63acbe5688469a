package cloudflare

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// TransportFailure means no response was obtained from the API on any
// attempt. It is the only failure class that is retried.
type TransportFailure struct {
	Attempts int
	Err      error
}

func (e *TransportFailure) Error() string {
	return fmt.Sprintf("cloudflare transport failure after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *TransportFailure) Unwrap() error {
	return e.Err
}

// TimeoutFailure means the last attempt was cut off by the per-attempt
// timeout or the caller's deadline.
type TimeoutFailure struct {
	Attempts int
	Err      error
}

func (e *TimeoutFailure) Error() string {
	return fmt.Sprintf("cloudflare request timed out after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *TimeoutFailure) Unwrap() error {
	return e.Err
}

// RequestFailure is a terminal non-2xx response. It is never retried.
type RequestFailure struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *RequestFailure) Error() string {
	return fmt.Sprintf("cloudflare %s %s failed with status %d: %s", e.Method, e.Path, e.Status, truncate(e.Body, 256))
}

// APIFailure is a 2xx response whose envelope reports `success: false`.
type APIFailure struct {
	Method string
	Path   string
	Errors []ResponseInfo
}

func (e *APIFailure) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, info := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%d: %s", info.Code, info.Message))
	}
	if len(msgs) == 0 {
		msgs = append(msgs, "no error details")
	}
	return fmt.Sprintf("cloudflare %s %s was unsuccessful: %s", e.Method, e.Path, strings.Join(msgs, "; "))
}

// IsNotFound reports whether err is a 404 response from the API.
func IsNotFound(err error) bool {
	var rf *RequestFailure
	return errors.As(err, &rf) && rf.Status == http.StatusNotFound
}

// IsRetryable reports whether err belongs to a class the client retries.
func IsRetryable(err error) bool {
	var tf *TransportFailure
	var to *TimeoutFailure
	return errors.As(err, &tf) || errors.As(err, &to)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
