package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditOperation names a key lifecycle or failure event.
type AuditOperation string

const (
	// AuditGenerate records the first key provisioned for a user.
	AuditGenerate AuditOperation = "generate"
	// AuditRotate records a key rotation.
	AuditRotate AuditOperation = "rotate"
	// AuditDecryptError records an envelope that failed integrity verification.
	AuditDecryptError AuditOperation = "decrypt_error"
	// AuditCacheClear records an administrative cache invalidation.
	AuditCacheClear AuditOperation = "cache_clear"
)

// AuditEntry is an append-only record of a key event.
//
// PerformedBy and SourceAddress are nil for system-triggered operations. Signature
// is an HMAC-SHA256 over the canonical form of every other field.
type AuditEntry struct {
	ID            uuid.UUID
	UserID        string
	Operation     AuditOperation
	PerformedBy   *string
	Timestamp     time.Time
	Details       map[string]any
	SourceAddress *string
	Signature     []byte
}
