package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/allisson/fieldcrypt/internal/database"
	userkeyDomain "github.com/allisson/fieldcrypt/internal/userkey/domain"
)

const postgresUserKeyColumns = `id, user_id, wrapped_dek, master_key_id, algorithm, version, created_at, rotated_at, is_active`

// PostgreSQLUserKeyRepository implements user key persistence for PostgreSQL.
// A partial unique index on (user_id) WHERE is_active enforces one active row per user.
type PostgreSQLUserKeyRepository struct {
	db        *sql.DB
	txManager database.TxManager
}

// Create inserts a new active key row. Returns ErrUserKeyAlreadyExists when the user
// already has an active row.
func (p *PostgreSQLUserKeyRepository) Create(ctx context.Context, key *userkeyDomain.UserEncryptionKey) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO user_encryption_keys (` + postgresUserKeyColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := querier.ExecContext(
		ctx,
		query,
		key.ID,
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
func (p *PostgreSQLUserKeyRepository) GetActive(
	ctx context.Context,
	userID string,
) (*userkeyDomain.UserEncryptionKey, error) {
	query := `SELECT ` + postgresUserKeyColumns + `
			  FROM user_encryption_keys
			  WHERE user_id = $1 AND is_active = TRUE`

	return p.getOne(ctx, "failed to get active user key", query, userID)
}

// GetByVersion returns the key row for userID and version, active or not.
func (p *PostgreSQLUserKeyRepository) GetByVersion(
	ctx context.Context,
	userID string,
	version uint,
) (*userkeyDomain.UserEncryptionKey, error) {
	query := `SELECT ` + postgresUserKeyColumns + `
			  FROM user_encryption_keys
			  WHERE user_id = $1 AND version = $2`

	return p.getOne(ctx, "failed to get user key by version", query, userID, version)
}

// Rotate deactivates the active row of userID and inserts newKey as version+1 in
// one transaction. newKey.Version, IsActive and RotatedAt are set by Rotate.
//
// Rotations of one user are serialized with a transaction-scoped advisory lock taken
// before the active row is read. Under READ COMMITTED a plain FOR UPDATE waiter would
// re-check the row it queued on, find it deactivated and miss the row inserted by
// the rotation it waited for.
func (p *PostgreSQLUserKeyRepository) Rotate(
	ctx context.Context,
	userID string,
	newKey *userkeyDomain.UserEncryptionKey,
) (uint, error) {
	err := p.txManager.WithTx(ctx, func(ctx context.Context) error {
		if _, err := database.GetTx(ctx, p.db).ExecContext(
			ctx,
			`SELECT pg_advisory_xact_lock(hashtextextended('user_encryption_keys:' || $1, 0))`,
			userID,
		); err != nil {
			return storeError(err, "failed to lock user keys")
		}

		query := `SELECT ` + postgresUserKeyColumns + `
				  FROM user_encryption_keys
				  WHERE user_id = $1 AND is_active = TRUE
				  FOR UPDATE`

		current, err := p.getOne(ctx, "failed to lock active user key", query, userID)
		if err != nil {
			return err
		}

		querier := database.GetTx(ctx, p.db)
		rotatedAt := time.Now().UTC()
		_, err = querier.ExecContext(
			ctx,
			`UPDATE user_encryption_keys SET is_active = FALSE, rotated_at = $1 WHERE id = $2`,
			rotatedAt,
			current.ID,
		)
		if err != nil {
			return storeError(err, "failed to deactivate user key")
		}

		newKey.UserID = userID
		newKey.Version = current.Version + 1
		newKey.IsActive = true
		newKey.RotatedAt = nil
		return p.Create(ctx, newKey)
	})
	if err != nil {
		return 0, txError(err, "failed to rotate user key")
	}
	return newKey.Version, nil
}

// Stats counts active and superseded key rows.
func (p *PostgreSQLUserKeyRepository) Stats(ctx context.Context) (userkeyDomain.KeyCoverage, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT COUNT(*) FILTER (WHERE is_active), COUNT(*) FILTER (WHERE NOT is_active)
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

func (p *PostgreSQLUserKeyRepository) getOne(
	ctx context.Context,
	op string,
	query string,
	args ...any,
) (*userkeyDomain.UserEncryptionKey, error) {
	querier := database.GetTx(ctx, p.db)

	var key userkeyDomain.UserEncryptionKey
	var rotatedAt sql.NullTime
	err := querier.QueryRowContext(ctx, query, args...).Scan(
		&key.ID,
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
	if rotatedAt.Valid {
		key.RotatedAt = &rotatedAt.Time
	}
	return &key, nil
}

// NewPostgreSQLUserKeyRepository creates a new PostgreSQL user key repository.
func NewPostgreSQLUserKeyRepository(db *sql.DB, txManager database.TxManager) *PostgreSQLUserKeyRepository {
	return &PostgreSQLUserKeyRepository{db: db, txManager: txManager}
}
