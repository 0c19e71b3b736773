// Package errs defines the error taxonomy shared across the orchestration
// core. Validation and auth errors are never retried; transient errors are
// candidates for the retry executor; conflict errors signal rejected state
// transitions and surface to the caller unchanged.
package errs

import (
	"errors"
	"fmt"
)

// ValidationError indicates malformed input. Caller's fault, never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// Validation builds a ValidationError for a field
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// TransientError wraps a failure that is expected to succeed on retry
// (timeout, network reset, 5xx).
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// ConflictError indicates an invalid state transition, e.g. assigning a
// resolved conversation.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return fmt.Sprintf("conflict: %s", e.Reason) }

// Conflict builds a ConflictError
func Conflict(format string, args ...interface{}) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

// AuthError indicates a failed signature or credential check. Rejected,
// logged, never retried.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return fmt.Sprintf("auth: %s", e.Reason) }

// Auth builds an AuthError
func Auth(reason string) error {
	return &AuthError{Reason: reason}
}

// NotFoundError indicates a missing entity
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }

// NotFound builds a NotFoundError
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsTransient reports whether err is a TransientError
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsConflict reports whether err is a ConflictError
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// IsAuth reports whether err is an AuthError
func IsAuth(err error) bool {
	var a *AuthError
	return errors.As(err, &a)
}

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}
