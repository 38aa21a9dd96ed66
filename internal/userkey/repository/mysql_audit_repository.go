package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/allisson/fieldcrypt/internal/database"
	apperrors "github.com/allisson/fieldcrypt/internal/errors"
	userkeyDomain "github.com/allisson/fieldcrypt/internal/userkey/domain"
)

// MySQLAuditRepository implements audit entry persistence for MySQL.
type MySQLAuditRepository struct {
	db *sql.DB
}

// Create inserts a new audit entry.
func (m *MySQLAuditRepository) Create(ctx context.Context, entry *userkeyDomain.AuditEntry) error {
	querier := database.GetTx(ctx, m.db)

	id, err := entry.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal audit entry id")
	}

	detailsJSON, err := marshalDetails(entry.Details)
	if err != nil {
		return err
	}
	// JSON columns reject binary-charset parameters.
	var details any
	if detailsJSON != nil {
		details = string(detailsJSON)
	}

	query := `INSERT INTO encryption_audit_logs
			  (id, user_id, operation, performed_by, details, source_address, signature, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		entry.UserID,
		string(entry.Operation),
		entry.PerformedBy,
		details,
		entry.SourceAddress,
		entry.Signature,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to create audit entry: %w", userkeyDomain.ErrStoreUnavailable, err)
	}
	return nil
}

// List returns audit entries oldest first.
func (m *MySQLAuditRepository) List(
	ctx context.Context,
	offset, limit int,
) ([]*userkeyDomain.AuditEntry, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, user_id, operation, performed_by, details, source_address, signature, created_at
			  FROM encryption_audit_logs
			  ORDER BY id ASC
			  LIMIT ? OFFSET ?`

	rows, err := querier.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list audit entries: %w", userkeyDomain.ErrStoreUnavailable, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	entries := make([]*userkeyDomain.AuditEntry, 0)
	for rows.Next() {
		var entry userkeyDomain.AuditEntry
		var idBytes, detailsJSON []byte
		var operation string
		var performedBy, sourceAddress sql.NullString

		if err := rows.Scan(
			&idBytes,
			&entry.UserID,
			&operation,
			&performedBy,
			&detailsJSON,
			&sourceAddress,
			&entry.Signature,
			&entry.Timestamp,
		); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan audit entry")
		}

		if err := entry.ID.UnmarshalBinary(idBytes); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal audit entry id")
		}
		entry.Operation = userkeyDomain.AuditOperation(operation)
		entry.PerformedBy = nullStringPtr(performedBy)
		entry.SourceAddress = nullStringPtr(sourceAddress)
		if entry.Details, err = unmarshalDetails(detailsJSON); err != nil {
			return nil, err
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate audit entries: %w", userkeyDomain.ErrStoreUnavailable, err)
	}
	return entries, nil
}

// NewMySQLAuditRepository creates a new MySQL audit repository.
func NewMySQLAuditRepository(db *sql.DB) *MySQLAuditRepository {
	return &MySQLAuditRepository{db: db}
}
