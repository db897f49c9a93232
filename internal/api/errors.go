package api

import (
	"context"
	"errors"
	"fmt"
)

// Common errors returned by API operations. Check with errors.Is / As.
var (
	// ErrUnauthorized is returned when the server rejects the
	// credential. Callers run the refresh or re-login flow; the same
	// token is never retried.
	ErrUnauthorized = errors.New("authentication rejected")

	// ErrNotFound is returned for unknown workspaces or files.
	ErrNotFound = errors.New("not found")
)

// TransportError wraps a network-level failure. Transport errors are
// retryable for idempotent operations.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError reports a non-2xx response with the server's typed
// error payload.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.Code)
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsNotFound reports whether err is a missing-resource failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable reports whether the operation may succeed on retry.
// Auth failures and client errors are not retryable; transport
// failures and 5xx responses are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	return false
}
