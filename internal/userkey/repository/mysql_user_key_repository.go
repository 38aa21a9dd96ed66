package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/allisson/fieldcrypt/internal/database"
	apperrors "github.com/allisson/fieldcrypt/internal/errors"
	userkeyDomain "github.com/allisson/fieldcrypt/internal/userkey/domain"
)

const mysqlUserKeyColumns = `id, user_id, wrapped_dek, master_key_id, algorithm, version, created_at, rotated_at, is_active`

// MySQLUserKeyRepository implements user key persistence for MySQL.
// Uses BINARY(16) for UUIDs. One active row per user is enforced by a unique index
// on a generated column that is NULL for inactive rows.
type MySQLUserKeyRepository struct {
	db        *sql.DB
	txManager database.TxManager
}

// Create inserts a new active key row. Returns ErrUserKeyAlreadyExists when the user
// already has an active row.
func (m *MySQLUserKeyRepository) Create(ctx context.Context, key *userkeyDomain.UserEncryptionKey) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO user_encryption_keys (` + mysqlUserKeyColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	id, err := key.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal user key id")
	}

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		key.UserID,
		key.WrappedDEK,
		key.MasterKeyID,
		key.Algorithm,
		key.Version,
		key.CreatedAt,
		key.RotatedAt,
		key.IsActive,
	)
	if err != nil {
		return storeError(err, "failed to create user key")
	}
	return nil
}

// GetActive returns the active key row for userID.
func (m *MySQLUserKeyRepository) GetActive(
	ctx context.Context,
	userID string,
) (*userkeyDomain.UserEncryptionKey, error) {
	query := `SELECT ` + mysqlUserKeyColumns + `
			  FROM user_encryption_keys
			  WHERE user_id = ? AND is_active = TRUE`

	return m.getOne(ctx, "failed to get active user key", query, userID)
}

// GetByVersion returns the key row for userID and version, active or not.
func (m *MySQLUserKeyRepository) GetByVersion(
	ctx context.Context,
	userID string,
	version uint,
) (*userkeyDomain.UserEncryptionKey, error) {
	query := `SELECT ` + mysqlUserKeyColumns + `
			  FROM user_encryption_keys
			  WHERE user_id = ? AND version = ?`

	return m.getOne(ctx, "failed to get user key by version", query, userID, version)
}

// Rotate deactivates the active row of userID and inserts newKey as version+1 in
// one transaction. Every row of the user is locked first, so a concurrent rotation
// waits for this one to commit and then reads the new active row.
func (m *MySQLUserKeyRepository) Rotate(
	ctx context.Context,
	userID string,
	newKey *userkeyDomain.UserEncryptionKey,
) (uint, error) {
	err := m.txManager.WithTx(ctx, func(ctx context.Context) error {
		var rows int
		if err := database.GetTx(ctx, m.db).QueryRowContext(
			ctx,
			`SELECT COUNT(*) FROM user_encryption_keys WHERE user_id = ? FOR UPDATE`,
			userID,
		).Scan(&rows); err != nil {
			return storeError(err, "failed to lock user keys")
		}

		query := `SELECT ` + mysqlUserKeyColumns + `
				  FROM user_encryption_keys
				  WHERE user_id = ? AND is_active = TRUE
				  FOR UPDATE`

		current, err := m.getOne(ctx, "failed to lock active user key", query, userID)
		if err != nil {
			return err
		}

		id, err := current.ID.MarshalBinary()
		if err != nil {
			return apperrors.Wrap(err, "failed to marshal user key id")
		}

		querier := database.GetTx(ctx, m.db)
		_, err = querier.ExecContext(
			ctx,
			`UPDATE user_encryption_keys SET is_active = FALSE, rotated_at = ? WHERE id = ?`,
			time.Now().UTC(),
			id,
		)
		if err != nil {
			return storeError(err, "failed to deactivate user key")
		}

		newKey.UserID = userID
		newKey.Version = current.Version + 1
		newKey.IsActive = true
		newKey.RotatedAt = nil
		return m.Create(ctx, newKey)
	})
	if err != nil {
		return 0, txError(err, "failed to rotate user key")
	}
	return newKey.Version, nil
}

// Stats counts active and superseded key rows.
func (m *MySQLUserKeyRepository) Stats(ctx context.Context) (userkeyDomain.KeyCoverage, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT COALESCE(SUM(CASE WHEN is_active THEN 1 ELSE 0 END), 0),
					 COALESCE(SUM(CASE WHEN is_active THEN 0 ELSE 1 END), 0)
			  FROM user_encryption_keys`

	var coverage userkeyDomain.KeyCoverage
	if err := querier.QueryRowContext(ctx, query).Scan(
		&coverage.UsersWithActiveKey,
		&coverage.RotatedKeys,
	); err != nil {
		return userkeyDomain.KeyCoverage{}, storeError(err, "failed to count user keys")
	}
	return coverage, nil
}

func (m *MySQLUserKeyRepository) getOne(
	ctx context.Context,
	op string,
	query string,
	args ...any,
) (*userkeyDomain.UserEncryptionKey, error) {
	querier := database.GetTx(ctx, m.db)

	var key userkeyDomain.UserEncryptionKey
	var idBytes []byte
	var rotatedAt sql.NullTime
	err := querier.QueryRowContext(ctx, query, args...).Scan(
		&idBytes,
		&key.UserID,
		&key.WrappedDEK,
		&key.MasterKeyID,
		&key.Algorithm,
		&key.Version,
		&key.CreatedAt,
		&rotatedAt,
		&key.IsActive,
	)
	if err != nil {
		return nil, storeError(err, op)
	}

	if err := key.ID.UnmarshalBinary(idBytes); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal user key id")
	}
	if rotatedAt.Valid {
		key.RotatedAt = &rotatedAt.Time
	}
	return &key, nil
}

// NewMySQLUserKeyRepository creates a new MySQL user key repository.
func NewMySQLUserKeyRepository(db *sql.DB, txManager database.TxManager) *MySQLUserKeyRepository {
	return &MySQLUserKeyRepository{db: db, txManager: txManager}
}
