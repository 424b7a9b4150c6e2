// Package pkgerrs defines the shared error taxonomy used across the
// pipeline: every service-level error is one of these kinds so that
// callers can decide retry/fail/partial behavior without inspecting
// string messages.
package pkgerrs

import "errors"

// ValidationError marks bad input: missing id, empty section type, and
// similar caller mistakes. Never retried.
type ValidationError struct{ err error }

func (e *ValidationError) Error() string { return e.err.Error() }
func (e *ValidationError) Unwrap() error { return e.err }

// NewValidation wraps err as a validation error.
func NewValidation(err error) error { return &ValidationError{err: err} }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// TransientError marks network/rate-limit/timeout failures that may
// succeed on retry with backoff.
type TransientError struct{ err error }

func (e *TransientError) Error() string { return e.err.Error() }
func (e *TransientError) Unwrap() error { return e.err }

// NewTransient wraps err as transient (retryable).
func NewTransient(err error) error { return &TransientError{err: err} }

// IsTransient reports whether err is a TransientError.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// LLMParseError marks malformed structured output from an LLM call.
// Callers get one repair retry, then fall back to an empty result.
type LLMParseError struct{ err error }

func (e *LLMParseError) Error() string { return e.err.Error() }
func (e *LLMParseError) Unwrap() error { return e.err }

// NewLLMParse wraps err as an LLM parse failure.
func NewLLMParse(err error) error { return &LLMParseError{err: err} }

// IsLLMParse reports whether err is an LLMParseError.
func IsLLMParse(err error) bool {
	var p *LLMParseError
	return errors.As(err, &p)
}

// ConflictError marks a uniqueness violation that is expected under
// idempotent retries; callers should fall back to a get and treat it
// as success.
type ConflictError struct{ err error }

func (e *ConflictError) Error() string { return e.err.Error() }
func (e *ConflictError) Unwrap() error { return e.err }

// NewConflict wraps err as a conflict (idempotent retry collision).
func NewConflict(err error) error { return &ConflictError{err: err} }

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// IntegrityError marks an unexpected uniqueness/constraint violation.
// The owning stage should fail, not retry.
type IntegrityError struct{ err error }

func (e *IntegrityError) Error() string { return e.err.Error() }
func (e *IntegrityError) Unwrap() error { return e.err }

// NewIntegrity wraps err as an integrity violation.
func NewIntegrity(err error) error { return &IntegrityError{err: err} }

// IsIntegrity reports whether err is an IntegrityError.
func IsIntegrity(err error) bool {
	var i *IntegrityError
	return errors.As(err, &i)
}

// FatalError marks an invariant breach (e.g. embedding dimension
// mismatch). The workflow halts and awaits an operator.
type FatalError struct{ err error }

func (e *FatalError) Error() string { return e.err.Error() }
func (e *FatalError) Unwrap() error { return e.err }

// NewFatal wraps err as fatal (non-retryable, halts the workflow).
func NewFatal(err error) error { return &FatalError{err: err} }

// IsFatal reports whether err is a FatalError.
func IsFatal(err error) bool {
	var f *FatalError
	return errors.As(err, &f)
}

// ErrNotFound is returned by repository Get methods when no row
// matches the given key.
var ErrNotFound = errors.New("not found")
