package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"agenda/backend/internal/store"
)

// classify maps a driver error onto the store's error vocabulary.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pErr *store.PersistenceError
	if errors.As(err, &pErr) {
		return err
	}
	return &store.PersistenceError{Op: op, Retryable: retryable(err), Err: err}
}

// isInfrastructure reports whether err came from the database or the connection rather
// than from the caller's transaction body.
func isInfrastructure(err error) bool {
	var pErr *store.PersistenceError
	if errors.As(err, &pErr) {
		return false
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, sql.ErrTxDone) ||
		pgconn.Timeout(err)
}

func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		// serialization_failure, deadlock_detected, query_canceled, lock_not_available
		case "40001", "40P01", "57014", "55P03":
			return true
		}
		return strings.HasPrefix(pgErr.Code, "08")
	}
	return pgconn.Timeout(err) || pgconn.SafeToRetry(err)
}
