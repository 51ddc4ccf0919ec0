package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind is the closed error taxonomy the rest of the system handles.
// Internal components branch on kinds, never on raw errors.
type Kind string

// Error kind constants.
const (
	KindInvalidInput Kind = "invalid_input"
	KindTimeout      Kind = "provider_timeout"
	KindUnavailable  Kind = "provider_unavailable"
	KindProtocol     Kind = "provider_protocol"
	KindCancelled    Kind = "cancelled"
	KindInternal     Kind = "internal_invariant"
)

// Error is a classified provider error.
type Error struct {
	Kind Kind
	Op   string // operation that failed (e.g. "ollama.summarize")
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified provider error.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Classify maps an error's outward symptom to a taxonomy kind.
// Already-classified errors keep their kind; context errors map to
// timeout/cancelled; transport errors map to unavailable. Anything
// unrecognized is an internal invariant violation.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return KindTimeout
		}
		return KindUnavailable
	}
	return KindInternal
}

// Retryable reports whether a kind is worth retrying. Protocol errors are
// retried once only; the scheduler enforces that cap.
func Retryable(kind Kind) bool {
	switch kind {
	case KindTimeout, KindUnavailable, KindProtocol:
		return true
	default:
		return false
	}
}

// classifyTransportError wraps a round-trip failure with its symptom kind.
func classifyTransportError(op string, err error) *Error {
	return NewError(Classify(err), op, err)
}

// classifyStatus maps a non-2xx HTTP status to an error kind. A 2xx status
// returns the empty kind.
func classifyStatus(status int) Kind {
	switch {
	case status >= 200 && status < 300:
		return ""
	case status == 408 || status == 504:
		return KindTimeout
	case status == 429 || status >= 500:
		return KindUnavailable
	case status == 400 || status == 413 || status == 422:
		return KindInvalidInput
	default:
		// Auth failures and other unexpected 4xx mean the integration
		// itself is broken, not the input.
		return KindProtocol
	}
}
