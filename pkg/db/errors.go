package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const pgUniqueViolationCode = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation on
// the named constraint or column. The error must carry a unique-violation
// marker; merely mentioning the constraint name is not enough, so other DB
// failures that reference the same column are never misread as duplicates.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		if pgxErr.Code != pgUniqueViolationCode {
			return false
		}
		return constraintName == "" ||
			strings.Contains(pgxErr.ConstraintName, constraintName) ||
			strings.Contains(pgxErr.Detail, constraintName)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if string(pqErr.Code) != pgUniqueViolationCode {
			return false
		}
		return constraintName == "" ||
			strings.Contains(pqErr.Constraint, constraintName) ||
			strings.Contains(pqErr.Detail, constraintName)
	}

	// Fallback for drivers surfacing plain messages, sqlite in tests mainly.
	msg := err.Error()
	unique := strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "UNIQUE constraint failed")
	if !unique {
		return false
	}
	return constraintName == "" || strings.Contains(msg, constraintName)
}
