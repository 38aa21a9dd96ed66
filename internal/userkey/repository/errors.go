// Package repository implements the key store: persistence of wrapped per-user DEKs
// and encryption audit entries on PostgreSQL and MySQL.
package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	apperrors "github.com/allisson/fieldcrypt/internal/errors"
	userkeyDomain "github.com/allisson/fieldcrypt/internal/userkey/domain"
)

const (
	postgresUniqueViolation = "23505"
	mysqlDuplicateEntry     = 1062
)

// isUniqueViolation reports whether err is a unique constraint violation on either driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == postgresUniqueViolation
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateEntry
	}
	return false
}

// storeError translates a driver error into the key store taxonomy. Anything that is
// not a missing row or a duplicate is treated as the store being unavailable.
func storeError(err error, op string) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return userkeyDomain.ErrUserKeyNotFound
	case isUniqueViolation(err):
		return userkeyDomain.ErrUserKeyAlreadyExists
	default:
		return fmt.Errorf("%w: %s: %w", userkeyDomain.ErrStoreUnavailable, op, err)
	}
}

// txError classifies a failure returned by WithTx. Errors already in the taxonomy
// pass through; begin and commit failures become ErrStoreUnavailable.
func txError(err error, op string) error {
	if errors.Is(err, apperrors.ErrNotFound) ||
		errors.Is(err, apperrors.ErrConflict) ||
		errors.Is(err, apperrors.ErrUnavailable) {
		return err
	}
	return storeError(err, op)
}
