package domain

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// EnvelopePrefix marks a serialized EncryptedField. The "v1" segment is the
// serialization version, not the key version.
const EnvelopePrefix = "enc:v1:"

const (
	nonceSize = 12
	tagSize   = 16
)

var envelopeEncoding = base64.RawURLEncoding.Strict()

// EncryptedField is the at-rest representation of one encrypted value.
//
// The serialized form is "enc:v1:<algorithm>:<key-version>:<payload>" where payload
// is unpadded base64url of nonce || ciphertext || tag. It carries everything
// Decrypt needs besides the key itself: the algorithm, the user key version to
// unwrap, and the nonce boundary (fixed at 12 bytes for both algorithms).
//
// Fields:
//   - Algorithm: AEAD used to seal the value
//   - KeyVersion: version of the user's DEK that sealed the value
//   - Nonce: 12-byte nonce, unique per encryption
//   - Ciphertext: sealed value with the 16-byte authentication tag appended
type EncryptedField struct {
	Algorithm  Algorithm
	KeyVersion uint
	Nonce      []byte
	Ciphertext []byte
}

// String serializes the envelope.
func (f EncryptedField) String() string {
	payload := make([]byte, 0, len(f.Nonce)+len(f.Ciphertext))
	payload = append(payload, f.Nonce...)
	payload = append(payload, f.Ciphertext...)
	return fmt.Sprintf(
		"%s%s:%d:%s",
		EnvelopePrefix,
		f.Algorithm,
		f.KeyVersion,
		envelopeEncoding.EncodeToString(payload),
	)
}

// IsEnvelope reports whether s looks like a serialized EncryptedField.
func IsEnvelope(s string) bool {
	return strings.HasPrefix(s, EnvelopePrefix)
}

// ParseEncryptedField parses a serialized envelope.
//
// Every malformed input returns ErrIntegrity: a stored envelope that no longer
// parses has been corrupted or tampered with, and callers must treat it the same
// way as a failed authentication tag.
func ParseEncryptedField(s string) (EncryptedField, error) {
	if !IsEnvelope(s) {
		return EncryptedField{}, fmt.Errorf("%w: missing envelope prefix", ErrIntegrity)
	}

	parts := strings.Split(strings.TrimPrefix(s, EnvelopePrefix), ":")
	if len(parts) != 3 {
		return EncryptedField{}, fmt.Errorf("%w: expected 3 envelope segments, got %d", ErrIntegrity, len(parts))
	}

	alg, err := ParseAlgorithm(parts[0])
	if err != nil {
		return EncryptedField{}, fmt.Errorf("%w: unknown algorithm", ErrIntegrity)
	}

	version, err := parseKeyVersion(parts[1])
	if err != nil {
		return EncryptedField{}, err
	}

	payload, err := envelopeEncoding.DecodeString(parts[2])
	if err != nil {
		return EncryptedField{}, fmt.Errorf("%w: invalid payload encoding", ErrIntegrity)
	}
	if len(payload) < nonceSize+tagSize {
		return EncryptedField{}, fmt.Errorf("%w: payload too short", ErrIntegrity)
	}

	return EncryptedField{
		Algorithm:  alg,
		KeyVersion: version,
		Nonce:      payload[:nonceSize],
		Ciphertext: payload[nonceSize:],
	}, nil
}

// parseKeyVersion accepts only canonical positive decimals so that no two
// strings decode to the same version.
func parseKeyVersion(s string) (uint, error) {
	if s == "" || s[0] == '0' {
		return 0, fmt.Errorf("%w: invalid key version", ErrIntegrity)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: invalid key version", ErrIntegrity)
		}
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid key version", ErrIntegrity)
	}
	return uint(v), nil
}
