package types

import (
	"errors"
	"fmt"
)

// ErrNoProvidersConfigured is returned when a request is dispatched
// with zero enabled providers. It is the only batch-fatal condition;
// callers surface it as a user-actionable error, not a crash.
var ErrNoProvidersConfigured = errors.New("no providers configured: set at least one provider API key")

// ErrorKind classifies provider invocation failures.
type ErrorKind string

const (
	ErrorKindAPI         ErrorKind = "api_error"
	ErrorKindHTTP        ErrorKind = "http_error"
	ErrorKindRateLimited ErrorKind = "rate_limited"
	ErrorKindAuth        ErrorKind = "auth"
	ErrorKindBadResponse ErrorKind = "bad_response"
)

// ProviderError represents a single failed provider invocation. It is
// recorded in the outcome ledger and never aborts the batch.
type ProviderError struct {
	Provider string    `json:"provider"`
	Kind     ErrorKind `json:"kind"`
	Status   int       `json:"status,omitempty"`
	Message  string    `json:"message"`
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("[%s] %s: %s (status %d)", e.Provider, e.Kind, e.Message, e.Status)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Kind, e.Message)
}

// RetryExhaustedError is the terminal form of a provider invocation
// error once the whole attempt budget is spent. It wraps the last
// error observed.
type RetryExhaustedError struct {
	Provider string
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("provider %s failed after %d attempts: %v", e.Provider, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}
