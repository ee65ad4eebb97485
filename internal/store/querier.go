package store

import (
	"context"
	"database/sql"
	"strings"
)

// Querier is satisfied by both *sql.DB and *sql.Tx so store functions can run
// standalone or as part of a caller's transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// affectedOne returns model.ErrNotFound-wrapped err when the statement touched no rows.
func affectedOne(result sql.Result, what string, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(what, id)
	}
	return nil
}

// IsConstraintViolation reports whether err came from a UNIQUE or CHECK
// constraint rejecting a write.
func IsConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "CHECK constraint failed")
}
