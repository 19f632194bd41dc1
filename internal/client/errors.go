package client

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned when a client is asked to perform a call
// without the credentials it needs.
var ErrNotConfigured = errors.New("remote compute API not configured")

// TransportError wraps a network-level failure: connection refused, timeout,
// or a response body that could not be read or parsed.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteRejectedError means the remote API answered but refused the request:
// a non-2xx status, or a 2xx response missing the job identifier.
type RemoteRejectedError struct {
	StatusCode int
	Message    string
}

func (e *RemoteRejectedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote API rejected request (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("remote API rejected request (status %d)", e.StatusCode)
}
