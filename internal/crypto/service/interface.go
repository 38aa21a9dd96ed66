// Package service provides the cryptographic primitives of the field encryption engine:
// AEAD ciphers (AES-256-GCM, ChaCha20-Poly1305), the field cipher that seals single
// record values, and the master key clients that wrap and unwrap per-user DEKs.
package service

import (
	"context"

	cryptoDomain "github.com/allisson/fieldcrypt/internal/crypto/domain"
)

// AEAD defines the interface for Authenticated Encryption with Associated Data.
type AEAD interface {
	// Encrypt encrypts plaintext with optional AAD and returns ciphertext and nonce.
	Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error)

	// Decrypt decrypts ciphertext using the provided nonce and AAD.
	Decrypt(ciphertext, nonce, aad []byte) ([]byte, error)
}

// AEADManager defines the interface for creating AEAD cipher instances.
type AEADManager interface {
	// CreateCipher creates an AEAD cipher instance for the specified algorithm.
	CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error)
}

// FieldCipher seals and opens single field values with a raw 32-byte DEK.
//
// Implementations are stateless and safe for concurrent use. The returned
// EncryptedField has KeyVersion unset; the caller stamps the DEK version.
type FieldCipher interface {
	// Encrypt seals value under key, binding it to aad.
	Encrypt(
		key []byte,
		alg cryptoDomain.Algorithm,
		value cryptoDomain.FieldValue,
		aad []byte,
	) (cryptoDomain.EncryptedField, error)

	// Decrypt opens field with key and aad. Any failure is ErrIntegrity.
	Decrypt(key []byte, field cryptoDomain.EncryptedField, aad []byte) (cryptoDomain.FieldValue, error)
}

// MasterKeyClient is the boundary to the external key-wrapping service.
//
// Every failure is returned as *KeyServiceError. The plaintext key handed to Wrap
// is never retained by the client.
type MasterKeyClient interface {
	// Wrap encrypts a plaintext DEK and returns the wrapped bytes together with the
	// identifier of the master key that wrapped it.
	Wrap(ctx context.Context, plaintextKey []byte) (wrapped []byte, keyID string, err error)

	// Unwrap decrypts a DEK previously produced by Wrap.
	Unwrap(ctx context.Context, wrapped []byte) ([]byte, error)
}

// KMSKeeper is the subset of *secrets.Keeper used by KeeperClient.
type KMSKeeper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Close() error
}
