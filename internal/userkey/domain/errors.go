package domain

import (
	cryptoDomain "github.com/allisson/fieldcrypt/internal/crypto/domain"
	"github.com/allisson/fieldcrypt/internal/errors"
)

// Encryption engine errors.
//
// Callers map them to their own responses with errors.Is: the *Unavailable errors
// match errors.ErrUnavailable (retryable), ErrMasterKeyAccessDenied matches
// errors.ErrForbidden, ErrNoKeyProvisioned and ErrMasterKeyNotFound match
// errors.ErrNotFound, ErrAlreadyExists matches errors.ErrConflict and ErrIntegrity
// matches errors.ErrInvalidInput.
var (
	// ErrKeyServiceUnavailable indicates the master key service failed or timed out.
	ErrKeyServiceUnavailable = errors.Wrap(errors.ErrUnavailable, "key service unavailable")

	// ErrMasterKeyAccessDenied indicates the key service refused to use the master
	// key, for example after a grant was revoked. Not retryable.
	ErrMasterKeyAccessDenied = errors.Wrap(errors.ErrForbidden, "master key access denied")

	// ErrMasterKeyNotFound indicates the master key was deleted or never existed.
	// Not retryable.
	ErrMasterKeyNotFound = errors.Wrap(errors.ErrNotFound, "master key not found")

	// ErrStoreUnavailable indicates the key store failed or timed out.
	ErrStoreUnavailable = errors.Wrap(errors.ErrUnavailable, "key store unavailable")

	// ErrNoKeyProvisioned indicates the user has no active encryption key.
	ErrNoKeyProvisioned = errors.Wrap(errors.ErrNotFound, "no encryption key provisioned")

	// ErrAlreadyExists indicates the user already has an active encryption key.
	ErrAlreadyExists = errors.Wrap(errors.ErrConflict, "encryption key already exists")

	// ErrIntegrity indicates an envelope failed authentication or could not be parsed.
	ErrIntegrity = cryptoDomain.ErrIntegrity

	// ErrAuditWriteFailure indicates an audit entry could not be persisted.
	// It is logged, never returned in place of the primary operation's result.
	ErrAuditWriteFailure = errors.Wrap(errors.ErrUnavailable, "audit write failure")

	// ErrUserKeyNotFound is returned by repositories when no matching key row exists.
	ErrUserKeyNotFound = errors.Wrap(errors.ErrNotFound, "user encryption key not found")

	// ErrUserKeyAlreadyExists is returned by repositories on a duplicate active row.
	ErrUserKeyAlreadyExists = errors.Wrap(ErrAlreadyExists, "active user encryption key exists")

	// ErrInvalidUserID indicates an empty or oversized user identifier.
	ErrInvalidUserID = errors.Wrap(errors.ErrInvalidInput, "invalid user id")

	// ErrEmptySigningKey indicates an audit signer was requested without a secret.
	ErrEmptySigningKey = errors.Wrap(errors.ErrInvalidInput, "audit signing key is empty")

	// ErrSignatureInvalid indicates an audit entry signature does not match its content.
	ErrSignatureInvalid = errors.Wrap(errors.ErrInvalidInput, "audit signature invalid")
)
