// Package librarian wires the Knowledge Store, Freshness Gate, Query
// Cache, Construction Planner, Retrieval Engine, Escalation Controller,
// Feedback Loop, Retrieval Observability, and Response Assembler into one
// query-answering service (§1-§9).
package librarian

import "errors"

// Kind is one of the recoverable/fatal error kinds from §7. Every
// recoverable kind surfaces exactly once in a response's disclosures with
// a stable tag; Cancelled/Timeout additionally propagate as an error so
// the caller's context cancellation is honored.
type Kind string

const (
	KindProviderUnavailable   Kind = "provider_unavailable"
	KindProviderInvalidOutput Kind = "provider_invalid_output"
	KindStorageRecoverable    Kind = "storage_recoverable"
	KindStorageFatal          Kind = "storage_fatal"
	KindBootstrapRequired     Kind = "bootstrap_required"
	KindFreshnessDegraded     Kind = "freshness_degraded"
	KindInvalidInput          Kind = "invalid_input"
	KindCancelled             Kind = "cancelled"
	KindTimeout               Kind = "timeout"
	KindUnreachable           Kind = "unreachable"
)

// Error wraps a Kind with context, the shape every typed sentinel below
// satisfies via errors.As.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrBootstrapRequired) style checks work against
// the Kind rather than a specific message/wrapped error.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func newErr(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Sentinel instances for errors.Is comparisons against a bare Kind.
var (
	ErrBootstrapRequired = &Error{Kind: KindBootstrapRequired, Message: "bootstrap required"}
	ErrInvalidInput       = &Error{Kind: KindInvalidInput, Message: "invalid input"}
	ErrUnreachable        = &Error{Kind: KindUnreachable, Message: "unreachable"}
	ErrStorageFatal       = &Error{Kind: KindStorageFatal, Message: "storage fatal"}
)
