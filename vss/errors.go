/*
errors.go - Centralized error kinds for the storage service

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Backends classify failures at the point of failure; the HTTP layer maps
  kinds to status codes without re-inspecting causes.

ERROR CATEGORIES:
  1. Conflict - version or existence mismatch on a conditional write
  2. NoSuchKey - Get of a non-existent, non-sentinel key
  3. InvalidRequest - malformed or over-limit request
  4. Auth - authentication or authorization failure
  5. Internal - backend I/O failure; cause is logged, never surfaced

USAGE:
  Match kinds with errors.Is:

    if errors.Is(err, vss.ErrConflict) {
        // re-read and rebase
    }

SEE ALSO:
  - api/handlers.go: kind -> HTTP status mapping
  - store/sqlite, store/memory: classification sites
*/
package vss

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Use with errors.Is().
var (
	// ErrConflict is returned when a conditional write references a version
	// that does not match the stored one, or a conditional insert hits an
	// existing record. Expected control flow; callers re-read and rebase.
	ErrConflict = errors.New("conflict")

	// ErrNoSuchKey is returned by Get for a key that does not exist.
	ErrNoSuchKey = errors.New("no such key")

	// ErrInvalidRequest is returned for malformed or over-limit requests.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrAuth is returned by authenticators for unauthorized requests.
	ErrAuth = errors.New("unauthorized")

	// ErrInternal wraps backend I/O failures. The cause is kept for logs
	// and must never reach a client.
	ErrInternal = errors.New("internal server error")
)

// Error carries a client-facing message alongside its kind.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }

// NewConflict builds a Conflict error with a short diagnostic.
func NewConflict(format string, args ...any) error {
	return &Error{kind: ErrConflict, msg: fmt.Sprintf(format, args...)}
}

// NewNoSuchKey builds a NoSuchKey error.
func NewNoSuchKey(format string, args ...any) error {
	return &Error{kind: ErrNoSuchKey, msg: fmt.Sprintf(format, args...)}
}

// NewInvalidRequest builds an InvalidRequest error.
func NewInvalidRequest(format string, args ...any) error {
	return &Error{kind: ErrInvalidRequest, msg: fmt.Sprintf(format, args...)}
}

// NewAuth builds an Auth error.
func NewAuth(format string, args ...any) error {
	return &Error{kind: ErrAuth, msg: fmt.Sprintf(format, args...)}
}

// NewInternal wraps a low-level failure. The message is for logs only;
// the HTTP layer replaces it with a constant string.
func NewInternal(format string, args ...any) error {
	return &Error{kind: ErrInternal, msg: fmt.Sprintf(format, args...)}
}

// CodeFor returns the wire error code for an error's kind.
func CodeFor(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrConflict):
		return ErrorCodeConflict
	case errors.Is(err, ErrNoSuchKey):
		return ErrorCodeNoSuchKey
	case errors.Is(err, ErrInvalidRequest):
		return ErrorCodeInvalidRequest
	case errors.Is(err, ErrAuth):
		return ErrorCodeAuth
	default:
		return ErrorCodeInternalServer
	}
}
