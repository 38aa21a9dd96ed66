// Package service provides the stateless helpers of the encryption engine.
package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	cryptoDomain "github.com/allisson/fieldcrypt/internal/crypto/domain"
	userkeyDomain "github.com/allisson/fieldcrypt/internal/userkey/domain"
)

const signingKeyInfo = "encryption-audit-signing-v1"

// AuditSigner signs and verifies audit entries with HMAC-SHA256. The MAC key is
// derived from the configured secret with HKDF-SHA256 so the raw secret is never
// used directly.
type AuditSigner struct {
	signingKey []byte
}

// NewAuditSigner derives the signing key from secret. Callers that run with signing
// disabled do not build a signer at all.
func NewAuditSigner(secret []byte) (*AuditSigner, error) {
	if len(secret) == 0 {
		return nil, userkeyDomain.ErrEmptySigningKey
	}

	signingKey := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(signingKeyInfo)), signingKey); err != nil {
		return nil, fmt.Errorf("failed to derive signing key: %w", err)
	}
	return &AuditSigner{signingKey: signingKey}, nil
}

// Sign returns the 32-byte signature of entry. entry.Signature is ignored.
func (a *AuditSigner) Sign(entry *userkeyDomain.AuditEntry) ([]byte, error) {
	canonical, err := canonicalizeEntry(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize audit entry: %w", err)
	}

	mac := hmac.New(sha256.New, a.signingKey)
	mac.Write(canonical)
	return mac.Sum(nil), nil
}

// Verify returns ErrSignatureInvalid when entry.Signature does not match its content.
func (a *AuditSigner) Verify(entry *userkeyDomain.AuditEntry) error {
	expected, err := a.Sign(entry)
	if err != nil {
		return fmt.Errorf("failed to compute expected signature: %w", err)
	}
	if !hmac.Equal(entry.Signature, expected) {
		return userkeyDomain.ErrSignatureInvalid
	}
	return nil
}

// Close zeroes the signing key.
func (a *AuditSigner) Close() {
	cryptoDomain.Zero(a.signingKey)
}

// canonicalizeEntry encodes entry as
// id || user_id || operation || performed_by || details || source_address || timestamp.
// Strings are length-prefixed and optional fields carry a presence byte. The timestamp
// is in microseconds, the precision both databases keep.
func canonicalizeEntry(entry *userkeyDomain.AuditEntry) ([]byte, error) {
	buf := make([]byte, 0, 256)

	buf = append(buf, entry.ID[:]...)
	buf = appendLengthPrefixed(buf, []byte(entry.UserID))
	buf = appendLengthPrefixed(buf, []byte(entry.Operation))
	buf = appendOptional(buf, entry.PerformedBy)

	if entry.Details != nil {
		// encoding/json sorts map keys.
		details, err := json.Marshal(entry.Details)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal details: %w", err)
		}
		buf = append(buf, 1)
		buf = appendLengthPrefixed(buf, details)
	} else {
		buf = append(buf, 0)
	}

	buf = appendOptional(buf, entry.SourceAddress)
	buf = binary.BigEndian.AppendUint64(buf, uint64(entry.Timestamp.UnixMicro()))
	return buf, nil
}

func appendOptional(buf []byte, s *string) []byte {
	if s == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	return appendLengthPrefixed(buf, []byte(*s))
}

// appendLengthPrefixed adds a 4-byte big-endian length followed by data.
func appendLengthPrefixed(buf []byte, data []byte) []byte {
	if uint64(len(data)) > 0xFFFFFFFF {
		panic("data length exceeds uint32 max (4GB)")
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(data)))
	return append(buf, data...)
}
