package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/darkauth/darkauth/internal/apperr"
)

// CreateAuthRequest persists a new pending authorization request.
func (d *DB) CreateAuthRequest(ctx context.Context, r *AuthRequest) error {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	_, err := d.sqlx.NamedExecContext(ctx, `
		INSERT INTO auth_requests
			(id, client_id, redirect_uri, response_type, scope, state, nonce,
			 code_challenge, code_challenge_method, zk_pub_key, request_origin,
			 created_at, expires_at, status)
		VALUES
			(:id, :client_id, :redirect_uri, :response_type, :scope, :state, :nonce,
			 :code_challenge, :code_challenge_method, :zk_pub_key, :request_origin,
			 :created_at, :expires_at, :status)`, r)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// AuthRequestByID loads a pending authorization request.
func (d *DB) AuthRequestByID(ctx context.Context, id string) (*AuthRequest, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	var r AuthRequest
	err := d.sqlx.GetContext(ctx, &r, `SELECT * FROM auth_requests WHERE id = $1`, id)
	if err != nil {
		if ErrNoRows(err) {
			return nil, apperr.NotFound("auth request", err)
		}
		return nil, apperr.Internal(err)
	}
	return &r, nil
}

// FinalizeAuthRequest transitions a pending AuthRequest into a freshly
// issued AuthorizationCode in one transaction, carrying the nonce forward
// unconditionally.
func (d *DB) FinalizeAuthRequest(ctx context.Context, reqID, code, subject string, wrappedDrk []byte, zkClientPubKey *string, orgID *string, codeTTL time.Duration) error {
	return d.Tx(ctx, func(tx *sqlx.Tx) error {
		var r AuthRequest
		err := tx.GetContext(ctx, &r, `SELECT * FROM auth_requests WHERE id = $1 FOR UPDATE`, reqID)
		if err != nil {
			if ErrNoRows(err) {
				return apperr.NotFound("auth request", err)
			}
			return apperr.Internal(err)
		}
		if r.Status != "pending" {
			return apperr.Conflict("auth request already finalized", nil)
		}
		if time.Now().After(r.ExpiresAt) {
			return apperr.InvalidGrant("auth request expired", nil)
		}

		now := time.Now()
		ac := AuthorizationCode{
			Code: code, AuthRequestID: r.ID, Subject: subject, ClientID: r.ClientID,
			RedirectURI: r.RedirectURI, Scope: r.Scope, Nonce: r.Nonce,
			CodeChallenge: r.CodeChallenge, WrappedDrk: wrappedDrk,
			ZkClientPubKey: zkClientPubKey, OrgID: orgID,
			IssuedAt: now, ExpiresAt: now.Add(codeTTL),
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO authorization_codes
				(code, auth_request_id, subject, client_id, redirect_uri, scope, nonce,
				 code_challenge, wrapped_drk, zk_client_pub_key, org_id, issued_at, expires_at)
			VALUES
				(:code, :auth_request_id, :subject, :client_id, :redirect_uri, :scope, :nonce,
				 :code_challenge, :wrapped_drk, :zk_client_pub_key, :org_id, :issued_at, :expires_at)`, ac); err != nil {
			return apperr.Internal(err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE auth_requests SET status = 'finalized' WHERE id = $1`, r.ID); err != nil {
			return apperr.Internal(err)
		}
		return nil
	})
}

// RedeemAuthorizationCode loads a code FOR UPDATE and atomically marks it
// consumed, returning the pre-consumption row for the caller to validate
// and mint tokens from. Exactly one concurrent caller observes
// consumedAt == nil; every other caller (concurrent or later) gets
// invalid_grant.
func (d *DB) RedeemAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	var out AuthorizationCode
	err := d.Tx(ctx, func(tx *sqlx.Tx) error {
		var ac AuthorizationCode
		err := tx.GetContext(ctx, &ac, `SELECT * FROM authorization_codes WHERE code = $1 FOR UPDATE`, code)
		if err != nil {
			if ErrNoRows(err) {
				return apperr.InvalidGrant("unknown code", err)
			}
			return apperr.Internal(err)
		}
		if ac.ConsumedAt != nil {
			return apperr.InvalidGrant("code already redeemed", nil)
		}
		if time.Now().After(ac.ExpiresAt) {
			return apperr.InvalidGrant("code expired", nil)
		}
		now := time.Now()
		if _, err := tx.ExecContext(ctx, `UPDATE authorization_codes SET consumed_at = $2 WHERE code = $1`, code, now); err != nil {
			return apperr.Internal(err)
		}
		ac.ConsumedAt = &now
		out = ac
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AuthorizationCodeByCode is a plain, unlocked lookup used only for the
// defense-in-depth revoke-on-replay path: a caller
// that just observed RedeemAuthorizationCode fail because the code was
// already consumed uses this to recover the authRequestId to revoke.
func (d *DB) AuthorizationCodeByCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	var ac AuthorizationCode
	err := d.sqlx.GetContext(ctx, &ac, `SELECT * FROM authorization_codes WHERE code = $1`, code)
	if err != nil {
		if ErrNoRows(err) {
			return nil, apperr.InvalidGrant("unknown code", err)
		}
		return nil, apperr.Internal(err)
	}
	return &ac, nil
}

// RevokeSessionsByAuthRequest revokes any session chain that traces back
// to authRequestID, used as defense-in-depth when a code is replayed
// after having already been redeemed.
func (d *DB) RevokeSessionsByAuthRequest(ctx context.Context, authRequestID string) error {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	_, err := d.sqlx.ExecContext(ctx, `
		UPDATE sessions SET revoked_at = now()
		WHERE rotation_chain_id IN (
			SELECT rotation_chain_id FROM sessions s
			JOIN authorization_codes ac ON ac.auth_request_id = $1
			WHERE s.rotation_chain_id IS NOT NULL
		) AND revoked_at IS NULL`, authRequestID)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}
