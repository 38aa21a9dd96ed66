// Package usecase implements the encryption orchestrator: per-user key provisioning
// and rotation, record field encryption and decryption, and the audit trail of key
// events.
package usecase

import (
	"context"

	"github.com/allisson/fieldcrypt/internal/userkey/cache"
	userkeyDomain "github.com/allisson/fieldcrypt/internal/userkey/domain"
)

// UserKeyRepository persists wrapped per-user DEKs.
type UserKeyRepository interface {
	Create(ctx context.Context, key *userkeyDomain.UserEncryptionKey) error
	GetActive(ctx context.Context, userID string) (*userkeyDomain.UserEncryptionKey, error)
	GetByVersion(ctx context.Context, userID string, version uint) (*userkeyDomain.UserEncryptionKey, error)
	Rotate(ctx context.Context, userID string, newKey *userkeyDomain.UserEncryptionKey) (uint, error)
	Stats(ctx context.Context) (userkeyDomain.KeyCoverage, error)
}

// AuditRepository persists audit entries.
type AuditRepository interface {
	Create(ctx context.Context, entry *userkeyDomain.AuditEntry) error
	List(ctx context.Context, offset, limit int) ([]*userkeyDomain.AuditEntry, error)
}

// DekCache holds unwrapped DEKs between calls. See cache.DekCache.
type DekCache interface {
	GetOrFetch(ctx context.Context, userID string, version uint, fetch cache.FetchFunc) (*userkeyDomain.DEK, error)
	Invalidate(userID string)
	InvalidateAll()
	Stats() userkeyDomain.CacheStats
}

// AuditSigner signs audit entries before they are written.
type AuditSigner interface {
	Sign(entry *userkeyDomain.AuditEntry) ([]byte, error)
	Verify(entry *userkeyDomain.AuditEntry) error
}

// EncryptionUseCase is the public API of the field encryption engine.
type EncryptionUseCase interface {
	// GenerateUserKey provisions the first key for userID. Returns ErrAlreadyExists
	// when the user already has an active key; callers provisioning on first write
	// should treat that as success.
	GenerateUserKey(ctx context.Context, userID string) (*userkeyDomain.UserEncryptionKey, error)

	// GetUserDEK returns the active DEK of userID, from the cache when possible.
	//
	// Security Note: the caller owns the returned key and MUST call Zero on it after use.
	GetUserDEK(ctx context.Context, userID string) (*userkeyDomain.DEK, error)

	// EncryptFields returns a copy of record with each named field replaced by its
	// serialized envelope. The input record is never modified and no partially
	// encrypted record is ever returned.
	EncryptFields(
		ctx context.Context,
		userID string,
		record userkeyDomain.Record,
		fieldNames []string,
	) (userkeyDomain.Record, error)

	// DecryptFields returns a copy of record with each named envelope replaced by its
	// plaintext. Any envelope that fails verification fails the whole call with
	// ErrIntegrity.
	DecryptFields(
		ctx context.Context,
		userID string,
		record userkeyDomain.Record,
		fieldNames []string,
	) (userkeyDomain.Record, error)

	// RotateUserKey makes a new DEK active for userID and returns its version. Existing
	// envelopes are not re-encrypted; they keep decrypting with the version they name.
	RotateUserKey(ctx context.Context, userID string) (uint, error)

	// ClearCache evicts the cached DEKs of userID, or of every user when userID is empty.
	ClearCache(ctx context.Context, userID string) error

	GetCacheStats() userkeyDomain.CacheStats
	GetKeyCoverage(ctx context.Context) (userkeyDomain.KeyCoverage, error)
}

// AuditUseCase reads back the audit trail.
type AuditUseCase interface {
	// List returns audit entries oldest first.
	List(ctx context.Context, offset, limit int) ([]*userkeyDomain.AuditEntry, error)

	// Verify checks the signature of every stored entry.
	Verify(ctx context.Context, batchSize int) (*AuditVerificationReport, error)
}
