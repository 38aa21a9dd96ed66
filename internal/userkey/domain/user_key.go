// Package domain defines the per-user encryption key model, the audit trail entries
// and the error taxonomy of the field encryption engine.
package domain

import (
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	cryptoDomain "github.com/allisson/fieldcrypt/internal/crypto/domain"
	customValidation "github.com/allisson/fieldcrypt/internal/validation"
)

// MaxUserIDLength bounds user identifiers to the width of the user_id column.
const MaxUserIDLength = 255

// UserEncryptionKey is one wrapped DEK row for a user.
//
// Exactly one row per user is active. Rotation deactivates the current row, sets
// its RotatedAt and inserts a new active row with Version+1 in one transaction.
// Inactive rows are kept so envelopes sealed under older versions stay readable.
//
// WrappedDEK is master key ciphertext and is never logged.
type UserEncryptionKey struct {
	ID          uuid.UUID
	UserID      string
	WrappedDEK  []byte
	MasterKeyID string
	Algorithm   cryptoDomain.Algorithm
	Version     uint
	CreatedAt   time.Time
	RotatedAt   *time.Time
	IsActive    bool
}

// Validate checks a row before it is written.
func (k *UserEncryptionKey) Validate() error {
	return validation.ValidateStruct(k,
		validation.Field(&k.UserID, validation.By(validateUserID)),
		validation.Field(&k.WrappedDEK, validation.Required),
		validation.Field(&k.MasterKeyID, validation.Required),
		validation.Field(&k.Algorithm, validation.In(cryptoDomain.AESGCM, cryptoDomain.ChaCha20)),
		validation.Field(&k.Version, validation.Required, validation.Min(uint(1))),
	)
}

// ValidateUserID returns ErrInvalidUserID when userID cannot own a key.
func ValidateUserID(userID string) error {
	if err := validateUserID(userID); err != nil {
		return ErrInvalidUserID
	}
	return nil
}

func validateUserID(value any) error {
	return validation.Validate(value,
		validation.Required,
		validation.Length(1, MaxUserIDLength),
		customValidation.NoNullByte,
	)
}

// DEK is an unwrapped data encryption key together with the row metadata needed to
// seal envelopes. Key must be zeroed by the holder once it is no longer needed.
type DEK struct {
	UserID    string
	Version   uint
	Algorithm cryptoDomain.Algorithm
	Key       []byte
}

// Clone returns a copy with its own key buffer.
func (d *DEK) Clone() *DEK {
	return &DEK{
		UserID:    d.UserID,
		Version:   d.Version,
		Algorithm: d.Algorithm,
		Key:       cryptoDomain.CloneKey(d.Key),
	}
}

// Zero overwrites the key material.
func (d *DEK) Zero() {
	if d != nil {
		cryptoDomain.Zero(d.Key)
	}
}

// KeyCoverage summarizes provisioned keys across users.
type KeyCoverage struct {
	UsersWithActiveKey int64
	RotatedKeys        int64
}

// CacheStats describes the current DEK cache contents. Ages are zero when the
// cache is empty.
type CacheStats struct {
	ActiveCount int
	OldestAge   time.Duration
	NewestAge   time.Duration
}
