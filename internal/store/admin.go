package store

import (
	"context"

	"github.com/darkauth/darkauth/internal/apperr"
)

// CreateAdminPrincipal inserts a new AdminPrincipal row.
func (d *DB) CreateAdminPrincipal(ctx context.Context, a *AdminPrincipal) error {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	_, err := d.sqlx.NamedExecContext(ctx, `
		INSERT INTO admin_users (id, email, display_name, role, password_reset_required, created_at)
		VALUES (:id, :email, :display_name, :role, :password_reset_required, :created_at)`, a)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// AdminByEmail looks up an admin principal by exact email match; the email
// is not case-folded.
func (d *DB) AdminByEmail(ctx context.Context, email string) (*AdminPrincipal, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	var a AdminPrincipal
	err := d.sqlx.GetContext(ctx, &a, `SELECT * FROM admin_users WHERE email = $1`, email)
	if err != nil {
		if ErrNoRows(err) {
			return nil, apperr.NotFound("admin principal", err)
		}
		return nil, apperr.Internal(err)
	}
	return &a, nil
}

// AdminByID looks up an admin principal by its stable id.
func (d *DB) AdminByID(ctx context.Context, id string) (*AdminPrincipal, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	var a AdminPrincipal
	err := d.sqlx.GetContext(ctx, &a, `SELECT * FROM admin_users WHERE id = $1`, id)
	if err != nil {
		if ErrNoRows(err) {
			return nil, apperr.NotFound("admin principal", err)
		}
		return nil, apperr.Internal(err)
	}
	return &a, nil
}

// AnyAdminExists reports whether at least one admin principal row exists,
// used to guard the one-time install ceremony: once an admin exists,
// /install/init and the install CLI command refuse, since the install
// token is for the very first admin only.
func (d *DB) AnyAdminExists(ctx context.Context) (bool, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	var exists bool
	err := d.sqlx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM admin_users)`)
	if err != nil {
		return false, apperr.Internal(err)
	}
	return exists, nil
}
