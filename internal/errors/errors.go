// Package errors holds the error categories shared by every engine package.
// Domain errors wrap one of the sentinels below, and callers decide how to react
// with Is or Classify instead of looking at driver or SDK errors.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the user or key version does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict means the write would duplicate an existing active key.
	ErrConflict = errors.New("conflict")

	// ErrForbidden means a dependency refused the engine's credentials, for
	// example a master key the engine may no longer use.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidInput covers bad arguments and envelopes that fail verification.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable means the key service or key store failed or timed out.
	// Operations failing with it are safe to retry.
	ErrUnavailable = errors.New("unavailable")
)

// Kind names the category of an error.
type Kind string

const (
	KindNone         Kind = ""
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindForbidden    Kind = "forbidden"
	KindInvalidInput Kind = "invalid_input"
	KindUnavailable  Kind = "unavailable"
	KindInternal     Kind = "internal"
)

// Classify returns the category of err. Errors outside the taxonomy are KindInternal.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	default:
		return KindInternal
	}
}

// IsRetryable reports whether err is transient.
func IsRetryable(err error) bool {
	return Classify(err) == KindUnavailable
}

// Wrap prefixes err with message and keeps it matchable with Is. A nil err stays nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is is errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
