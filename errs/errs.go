// Package errs defines the closed taxonomy of error kinds the Entativa ID
// core returns. Every component returns a plain (T, error); callers that
// need to branch on failure class unwrap to *errs.Error with errors.As.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the six failure classes named in the design's error
// handling section. It is a closed set — do not add ad hoc string kinds.
type Kind string

const (
	// Input is a malformed request or a validation rule violation. Never
	// retried; callers should surface field-level detail.
	Input Kind = "input"

	// Auth is invalid credentials, an expired/revoked token, or
	// insufficient scope. Must never leak whether a user exists.
	Auth Kind = "auth"

	// Conflict is a duplicate eid/email, a duplicate pending reservation,
	// or a PKCE mismatch.
	Conflict Kind = "conflict"

	// Policy is a protected handle, a rate limit, or an MFA requirement.
	Policy Kind = "policy"

	// Transient is a cache/DB outage. It is returned to the caller as is;
	// no component retries it internally.
	Transient Kind = "transient"

	// Fatal is a missing signing key or corrupt persistent state. Never
	// succeeds silently.
	Fatal Kind = "fatal"
)

// Error is the wrapped form every component boundary returns. Code is a
// short machine-readable string (e.g. an OAuth2 error code); it is empty
// for components that don't sit behind the OAuth2 wire surface.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a kinded error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a kinded error around an existing cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithCode attaches an OAuth2/wire error code (e.g. "invalid_grant") and
// returns the same error for chaining at the call site.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// CodeOf returns the wire error code attached to err, if any.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
