package llm

import (
	"fmt"
	"time"
)

// ErrorKind is the closed set of gateway failure classes. Orchestration code
// matches on the kind, never on provider error text.
type ErrorKind string

const (
	KindRateLimit      ErrorKind = "RATE_LIMIT"
	KindTimeout        ErrorKind = "TIMEOUT"
	KindAuth           ErrorKind = "AUTH_ERROR"
	KindInvalidRequest ErrorKind = "INVALID_REQUEST"
	KindModelError     ErrorKind = "MODEL_ERROR"
	KindNetwork        ErrorKind = "NETWORK_ERROR"
	KindConfig         ErrorKind = "CONFIG_ERROR"
	KindUnknown        ErrorKind = "UNKNOWN_ERROR"
)

// Error is a typed gateway failure.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	// RetryAfter carries the upstream retry hint for rate-limit errors.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("llm: %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("llm: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the gateway retry loop may attempt the call again.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindTimeout, KindModelError, KindNetwork, KindUnknown:
		return true
	default:
		return false
	}
}

func newError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}
