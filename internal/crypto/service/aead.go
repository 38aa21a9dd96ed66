package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	cryptoDomain "github.com/allisson/fieldcrypt/internal/crypto/domain"
)

// fieldAEAD adapts a stdlib cipher.AEAD to the AEAD interface. Both supported
// algorithms use a 12-byte nonce and a 16-byte tag, so envelopes share one layout.
type fieldAEAD struct {
	algorithm cryptoDomain.Algorithm
	aead      cipher.AEAD
}

// Algorithm reports which field algorithm this instance implements.
func (f *fieldAEAD) Algorithm() cryptoDomain.Algorithm {
	return f.algorithm
}

// Encrypt seals plaintext under a fresh random nonce, authenticating aad.
func (f *fieldAEAD) Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, f.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return f.aead.Seal(nil, nonce, plaintext, aad), nonce, nil
}

// Decrypt verifies the tag and opens ciphertext. No plaintext is returned when
// verification fails.
func (f *fieldAEAD) Decrypt(ciphertext, nonce, aad []byte) ([]byte, error) {
	if len(nonce) != f.aead.NonceSize() {
		return nil, fmt.Errorf("%s: invalid nonce size %d", f.algorithm, len(nonce))
	}
	plaintext, err := f.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.algorithm, err)
	}
	return plaintext, nil
}

// NewAESGCM returns an AES-256-GCM AEAD, the default field algorithm.
func NewAESGCM(key []byte) (AEAD, error) {
	if len(key) != cryptoDomain.KeySize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &fieldAEAD{algorithm: cryptoDomain.AESGCM, aead: gcm}, nil
}

// NewChaCha20Poly1305 returns a ChaCha20-Poly1305 AEAD, for hosts without AES
// hardware acceleration.
func NewChaCha20Poly1305(key []byte) (AEAD, error) {
	if len(key) != cryptoDomain.KeySize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create ChaCha20-Poly1305 cipher: %w", err)
	}
	return &fieldAEAD{algorithm: cryptoDomain.ChaCha20, aead: aead}, nil
}

// AEADRegistry builds AEAD instances by field algorithm name.
type AEADRegistry struct {
	constructors map[cryptoDomain.Algorithm]func(key []byte) (AEAD, error)
}

// NewAEADManager returns a registry of the supported field algorithms.
func NewAEADManager() *AEADRegistry {
	return &AEADRegistry{
		constructors: map[cryptoDomain.Algorithm]func(key []byte) (AEAD, error){
			cryptoDomain.AESGCM:   NewAESGCM,
			cryptoDomain.ChaCha20: NewChaCha20Poly1305,
		},
	}
}

// CreateCipher returns the AEAD for alg keyed with key. Fails with
// ErrUnsupportedAlgorithm for unknown names and ErrInvalidKeySize for keys that are
// not 32 bytes.
func (r *AEADRegistry) CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error) {
	newAEAD, ok := r.constructors[alg]
	if !ok {
		return nil, cryptoDomain.ErrUnsupportedAlgorithm
	}
	return newAEAD(key)
}
