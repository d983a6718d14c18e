package store

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/darkauth/darkauth/internal/apperr"
)

// CreateSubject inserts a new Subject row.
func (d *DB) CreateSubject(ctx context.Context, s *Subject) error {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	_, err := d.sqlx.NamedExecContext(ctx, `
		INSERT INTO subjects (sub, email, display_name, password_reset_required, created_at)
		VALUES (:sub, :email, :display_name, :password_reset_required, :created_at)`, s)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// SubjectByEmail looks up a subject by exact email match; the email is not
// case-folded.
func (d *DB) SubjectByEmail(ctx context.Context, email string) (*Subject, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	var s Subject
	err := d.sqlx.GetContext(ctx, &s, `SELECT * FROM subjects WHERE email = $1`, email)
	if err != nil {
		if ErrNoRows(err) {
			return nil, apperr.NotFound("subject", err)
		}
		return nil, apperr.Internal(err)
	}
	return &s, nil
}

// SubjectByID looks up a subject by its stable sub.
func (d *DB) SubjectByID(ctx context.Context, sub string) (*Subject, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	var s Subject
	err := d.sqlx.GetContext(ctx, &s, `SELECT * FROM subjects WHERE sub = $1`, sub)
	if err != nil {
		if ErrNoRows(err) {
			return nil, apperr.NotFound("subject", err)
		}
		return nil, apperr.Internal(err)
	}
	return &s, nil
}

// UpdateSubjectEmail changes a subject's email. This never touches the
// credential identifier (sub), so the aPAKE envelope
// stays valid; callers are responsible for marking passwordResetRequired
// if they want to force a re-bind of the client-identity signature.
func (d *DB) UpdateSubjectEmail(ctx context.Context, sub, newEmail string) error {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	_, err := d.sqlx.ExecContext(ctx, `UPDATE subjects SET email = $2 WHERE sub = $1`, sub, newEmail)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// CredentialByPrincipal loads the envelope/server-pub-key row, if any.
func (d *DB) CredentialByPrincipal(ctx context.Context, principalID, cohort string) (*Credential, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	var c Credential
	err := d.sqlx.GetContext(ctx, &c, `
		SELECT * FROM credentials WHERE principal_id = $1 AND cohort = $2`, principalID, cohort)
	if err != nil {
		if ErrNoRows(err) {
			return nil, apperr.NotFound("credential", err)
		}
		return nil, apperr.Internal(err)
	}
	return &c, nil
}

// UpsertCredential atomically replaces (or creates) the envelope, server
// public key, and export key hash for a principal — the only way a
// credential row's envelope may change.
func (d *DB) UpsertCredential(ctx context.Context, c *Credential) error {
	return d.Tx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO credentials (principal_id, cohort, envelope, server_pub_key, export_key_hash, updated_at)
			VALUES (:principal_id, :cohort, :envelope, :server_pub_key, :export_key_hash, :updated_at)
			ON CONFLICT (principal_id, cohort) DO UPDATE SET
				envelope = EXCLUDED.envelope,
				server_pub_key = EXCLUDED.server_pub_key,
				export_key_hash = EXCLUDED.export_key_hash,
				updated_at = EXCLUDED.updated_at`, c)
		if err != nil {
			return apperr.Internal(err)
		}
		return nil
	})
}

// SetPasswordResetRequired flips the flag set by an admin-initiated
// password set.
func (d *DB) SetPasswordResetRequired(ctx context.Context, principalID string, cohort string, required bool) error {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	table := "subjects"
	idCol := "sub"
	if cohort == "admin" {
		table = "admin_users"
		idCol = "id"
	}
	_, err := d.sqlx.ExecContext(ctx,
		`UPDATE `+table+` SET password_reset_required = $2 WHERE `+idCol+` = $1`, principalID, required)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}
