package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/allisson/fieldcrypt/internal/database"
	apperrors "github.com/allisson/fieldcrypt/internal/errors"
	userkeyDomain "github.com/allisson/fieldcrypt/internal/userkey/domain"
)

// PostgreSQLAuditRepository implements audit entry persistence for PostgreSQL.
// Entries are append-only: there is no update or delete.
type PostgreSQLAuditRepository struct {
	db *sql.DB
}

// Create inserts a new audit entry. Nil details are stored as NULL.
func (p *PostgreSQLAuditRepository) Create(ctx context.Context, entry *userkeyDomain.AuditEntry) error {
	querier := database.GetTx(ctx, p.db)

	detailsJSON, err := marshalDetails(entry.Details)
	if err != nil {
		return err
	}

	query := `INSERT INTO encryption_audit_logs
			  (id, user_id, operation, performed_by, details, source_address, signature, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = querier.ExecContext(
		ctx,
		query,
		entry.ID,
		entry.UserID,
		string(entry.Operation),
		entry.PerformedBy,
		detailsJSON,
		entry.SourceAddress,
		entry.Signature,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to create audit entry: %w", userkeyDomain.ErrStoreUnavailable, err)
	}
	return nil
}

// List returns audit entries oldest first. UUIDv7 ids sort in creation order.
func (p *PostgreSQLAuditRepository) List(
	ctx context.Context,
	offset, limit int,
) ([]*userkeyDomain.AuditEntry, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, user_id, operation, performed_by, details, source_address, signature, created_at
			  FROM encryption_audit_logs
			  ORDER BY id ASC
			  LIMIT $1 OFFSET $2`

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
		var operation string
		var performedBy, sourceAddress sql.NullString
		var detailsJSON []byte

		if err := rows.Scan(
			&entry.ID,
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

func marshalDetails(details map[string]any) ([]byte, error) {
	if details == nil {
		return nil, nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal audit details")
	}
	return b, nil
}

func unmarshalDetails(b []byte) (map[string]any, error) {
	if b == nil {
		return nil, nil
	}
	var details map[string]any
	if err := json.Unmarshal(b, &details); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal audit details")
	}
	return details, nil
}

func nullStringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

// NewPostgreSQLAuditRepository creates a new PostgreSQL audit repository.
func NewPostgreSQLAuditRepository(db *sql.DB) *PostgreSQLAuditRepository {
	return &PostgreSQLAuditRepository{db: db}
}
