// Package errs defines the closed error taxonomy of spec §7, used by
// every upstream-facing component so callers can branch on error kind
// without string-matching.
package errs

import (
	"github.com/cockroachdb/errors"
)

// Kind classifies an error surfaced from an upstream call (spec §6
// "Error modes surfaced to callers").
type Kind string

const (
	KindOK           Kind = "ok"
	KindAPIError     Kind = "api_error"
	KindValidation   Kind = "validation_error"
	KindRateLimited  Kind = "rate_limited"
	KindNotFound     Kind = "not_found"
	KindAuth         Kind = "auth_error"
	KindPermanent    Kind = "permanent_upstream_error"
)

// Error wraps an error with a Kind so callers can branch with As/Is
// while still getting cockroachdb/errors-style wrapping and stacks.
type Error struct {
	Kind          Kind
	Status        int
	Message       string
	Body          string
	RetryAfterSec int
	RequiresReauth bool
	cause         error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// APIError builds a KindAPIError.
func APIError(status int, message, body string) *Error {
	return &Error{Kind: KindAPIError, Status: status, Message: message, Body: body}
}

// Validation builds a KindValidation error; these are never retried
// with the same parameters (spec §7).
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// RateLimited builds a KindRateLimited error carrying the upstream's
// Retry-After, in seconds.
func RateLimited(retryAfterSec int) *Error {
	return &Error{
		Kind:          KindRateLimited,
		Message:       "rate limited",
		RetryAfterSec: retryAfterSec,
	}
}

// NotFound builds a KindNotFound error.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Auth builds a KindAuthError, optionally signaling that the caller
// must re-run the authorization-code grant (out of scope per spec §1,
// but the flag still needs to be surfaced).
func Auth(message string, requiresReauth bool) *Error {
	return &Error{Kind: KindAuth, Message: message, RequiresReauth: requiresReauth}
}

// Permanent builds a KindPermanent error: a 4xx (other than a
// short Retry-After 429) or a known-bad seed combination. Per spec
// §7, these fail fast and are never retried inline.
func Permanent(message string) *Error {
	return &Error{Kind: KindPermanent, Message: message}
}

// Wrap attaches message context to err while preserving its Kind if
// err is (or wraps) an *Error, falling back to a plain wrap otherwise.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		clone := *e
		clone.cause = errors.Wrap(e.cause, message)
		if clone.cause == nil {
			clone.cause = errors.New(message)
		}
		return &clone
	}
	return errors.Wrap(err, message)
}

// KindOf extracts the Kind of err, or KindAPIError if err does not
// carry one (a defensive default — every caller-reachable upstream
// error path in this module is expected to construct an *Error).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindAPIError
}

// Is reports whether err carries the given Kind.
func Is(err error, k Kind) bool {
	return KindOf(err) == k
}
