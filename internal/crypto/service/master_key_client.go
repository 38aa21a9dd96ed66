package service

import (
	"context"
	"errors"
	"fmt"
)

// KeyServiceErrorKind classifies master key service failures.
type KeyServiceErrorKind string

const (
	// KeyServiceNotFound means the master key does not exist.
	KeyServiceNotFound KeyServiceErrorKind = "not_found"
	// KeyServiceAccessDenied means the caller may not use the master key.
	KeyServiceAccessDenied KeyServiceErrorKind = "access_denied"
	// KeyServiceUnavailable covers timeouts, network failures and throttling.
	KeyServiceUnavailable KeyServiceErrorKind = "unavailable"
)

// KeyServiceError is returned by every MasterKeyClient implementation.
type KeyServiceError struct {
	Kind KeyServiceErrorKind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *KeyServiceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("key service %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("key service %s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying provider error.
func (e *KeyServiceError) Unwrap() error {
	return e.Err
}

// newKeyServiceError builds a KeyServiceError, classifying context errors as unavailable.
func newKeyServiceError(op string, kind KeyServiceErrorKind, err error) *KeyServiceError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		kind = KeyServiceUnavailable
	}
	return &KeyServiceError{Kind: kind, Op: op, Err: err}
}

// IsKeyServiceError reports whether err carries a *KeyServiceError of the given kind.
func IsKeyServiceError(err error, kind KeyServiceErrorKind) bool {
	var kerr *KeyServiceError
	if !errors.As(err, &kerr) {
		return false
	}
	return kerr.Kind == kind
}
