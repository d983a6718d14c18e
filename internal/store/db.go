// Package store is the durable relational persistence layer: subjects,
// admin principals, credentials, authorization codes, sessions, TOTP
// records, signing keys, RBAC join tables, settings, and audit logs
//. Built on sqlx + lib/pq,
// grounded on the repository/transaction shape used elsewhere in the
// example corpus for raw-SQL services with row-level locking.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/darkauth/darkauth/internal/apperr"
)

// DB wraps a *sqlx.DB with the transaction helper every transactional
// operation in this package uses.
type DB struct {
	sqlx *sqlx.DB
}

// Open connects to Postgres at dsn and verifies connectivity.
func Open(ctx context.Context, dsn string) (*DB, error) {
	conn, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &DB{sqlx: conn}, nil
}

func (d *DB) Close() error { return d.sqlx.Close() }

// defaultTimeout bounds every outbound DB call.
const defaultTimeout = 5 * time.Second

// WithTimeout derives a context bounded by the default DB call deadline.
func WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultTimeout)
}

// Tx runs fn inside a single database transaction, committing on success
// and rolling back on error or panic. Used by every state-changing,
// multi-statement operation so a failure after a partial mutation always
// leaves the database unchanged.
func (d *DB) Tx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()

	tx, err := d.sqlx.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Internal(err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	err = fn(tx)
	return err
}

// ErrNoRows reports whether err is sql.ErrNoRows (possibly wrapped).
func ErrNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }
