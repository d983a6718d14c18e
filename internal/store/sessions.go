package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/darkauth/darkauth/internal/apperr"
)

// CreateSession inserts a new session row.
func (d *DB) CreateSession(ctx context.Context, s *Session) error {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	_, err := d.sqlx.NamedExecContext(ctx, `
		INSERT INTO sessions
			(session_id, cohort, subject_or_admin_id, client_id, created_at, last_seen_at,
			 idle_timeout_at, absolute_expires_at, csrf_token, otp_verified, org_id,
			 refresh_token_hash, rotation_chain_id, revoked_at)
		VALUES
			(:session_id, :cohort, :subject_or_admin_id, :client_id, :created_at, :last_seen_at,
			 :idle_timeout_at, :absolute_expires_at, :csrf_token, :otp_verified, :org_id,
			 :refresh_token_hash, :rotation_chain_id, :revoked_at)`, s)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// SessionByID loads a session by its opaque id. Revoked or expired
// sessions are still returned; the caller (SessionManager) judges validity
// so it can distinguish "not found" from "expired" for audit purposes.
func (d *DB) SessionByID(ctx context.Context, id string) (*Session, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	var s Session
	err := d.sqlx.GetContext(ctx, &s, `SELECT * FROM sessions WHERE session_id = $1`, id)
	if err != nil {
		if ErrNoRows(err) {
			return nil, apperr.NotFound("session", err)
		}
		return nil, apperr.Internal(err)
	}
	return &s, nil
}

// SessionByRefreshHash loads a session by the hash of its bound refresh
// token.
func (d *DB) SessionByRefreshHash(ctx context.Context, hash []byte) (*Session, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	var s Session
	err := d.sqlx.GetContext(ctx, &s, `SELECT * FROM sessions WHERE refresh_token_hash = $1`, hash)
	if err != nil {
		if ErrNoRows(err) {
			return nil, apperr.NotFound("session", err)
		}
		return nil, apperr.Internal(err)
	}
	return &s, nil
}

// TouchSession updates lastSeenAt best-effort, with no transaction.
func (d *DB) TouchSession(ctx context.Context, id string, now time.Time) error {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	_, err := d.sqlx.ExecContext(ctx, `UPDATE sessions SET last_seen_at = $2 WHERE session_id = $1`, id, now)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// MarkOtpVerified flips otp_verified once a session's TOTP challenge has
// been satisfied.
func (d *DB) MarkOtpVerified(ctx context.Context, id string) error {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	_, err := d.sqlx.ExecContext(ctx, `UPDATE sessions SET otp_verified = true WHERE session_id = $1`, id)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// RevokeSession marks a session revoked inside a transaction; the row is
// kept, not deleted.
func (d *DB) RevokeSession(ctx context.Context, id string) error {
	return d.Tx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE sessions SET revoked_at = now() WHERE session_id = $1 AND revoked_at IS NULL`, id)
		if err != nil {
			return apperr.Internal(err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return apperr.NotFound("session", nil)
		}
		return nil
	})
}

// RotateRefreshToken is the OIDC refresh grant's rotation: it loads the
// old session row FOR UPDATE, validates it (including that expectedClientID
// matches the client the token was issued to), inserts the replacement
// row, and revokes the old row, all atomically. Any concurrent attempt using the old refresh token observes
// either the row lock or the already-revoked row and fails. A clientId
// mismatch fails before anything is inserted, so a foreign client can
// never mint a replacement session from another client's refresh token.
func (d *DB) RotateRefreshToken(ctx context.Context, oldHash []byte, expectedClientID string, next *Session) (*Session, error) {
	var old Session
	err := d.Tx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &old, `SELECT * FROM sessions WHERE refresh_token_hash = $1 FOR UPDATE`, oldHash)
		if err != nil {
			if ErrNoRows(err) {
				return apperr.InvalidGrant("unknown refresh token", err)
			}
			return apperr.Internal(err)
		}
		if old.RevokedAt != nil {
			return apperr.InvalidGrant("refresh token already rotated", nil)
		}
		if time.Now().After(old.AbsoluteExpiresAt) {
			return apperr.InvalidGrant("refresh token expired", nil)
		}
		if old.ClientID == nil || *old.ClientID != expectedClientID {
			return apperr.InvalidGrant("refresh token not bound to this client", nil)
		}
		next.RotationChainID = old.RotationChainID
		next.SubjectOrAdminID = old.SubjectOrAdminID
		next.OrgID = old.OrgID
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO sessions
				(session_id, cohort, subject_or_admin_id, client_id, created_at, last_seen_at,
				 idle_timeout_at, absolute_expires_at, csrf_token, otp_verified, org_id,
				 refresh_token_hash, rotation_chain_id, revoked_at)
			VALUES
				(:session_id, :cohort, :subject_or_admin_id, :client_id, :created_at, :last_seen_at,
				 :idle_timeout_at, :absolute_expires_at, :csrf_token, :otp_verified, :org_id,
				 :refresh_token_hash, :rotation_chain_id, :revoked_at)`, next); err != nil {
			return apperr.Internal(err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE sessions SET revoked_at = now() WHERE session_id = $1`, old.SessionID); err != nil {
			return apperr.Internal(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &old, nil
}
