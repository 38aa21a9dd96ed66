package domain

import (
	"github.com/allisson/fieldcrypt/internal/errors"
)

// Cryptographic operation error definitions.
//
// These domain-specific errors wrap standard errors from internal/errors
// to provide context for cryptographic failures.
var (
	// ErrUnsupportedAlgorithm indicates the requested encryption algorithm is not supported.
	//
	// Supported algorithms: AESGCM (AES-256-GCM), ChaCha20 (ChaCha20-Poly1305).
	ErrUnsupportedAlgorithm = errors.Wrap(errors.ErrInvalidInput, "unsupported algorithm")

	// ErrInvalidKeySize indicates the cryptographic key size is invalid.
	//
	// Every DEK must be exactly 32 bytes (256 bits).
	ErrInvalidKeySize = errors.Wrap(errors.ErrInvalidInput, "invalid key size")

	// ErrIntegrity indicates an encrypted field failed verification.
	//
	// This error can occur due to:
	//   - Ciphertext, nonce or tag tampered with or corrupted
	//   - Wrong DEK used (for example another user's key)
	//   - Envelope bound to a different user or field
	//   - Malformed envelope encoding
	//
	// The specific cause is not disclosed. The error is never retryable and no
	// plaintext, partial or otherwise, accompanies it.
	ErrIntegrity = errors.Wrap(errors.ErrInvalidInput, "field integrity check failed")

	// ErrUnsupportedFieldType indicates a record value cannot be encrypted.
	//
	// Only strings, byte slices and nil are accepted as field values.
	ErrUnsupportedFieldType = errors.Wrap(errors.ErrInvalidInput, "unsupported field type")
)
