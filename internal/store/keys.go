package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/darkauth/darkauth/internal/apperr"
)

// KekParams loads the persisted, public Argon2id parameters.
func (d *DB) KekParams(ctx context.Context) (*KekParamsRow, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	var p KekParamsRow
	err := d.sqlx.GetContext(ctx, &p, `SELECT salt, time_cost, memory_kib, threads FROM kek_params LIMIT 1`)
	if err != nil {
		if ErrNoRows(err) {
			return nil, apperr.NotFound("kek params", err)
		}
		return nil, apperr.Internal(err)
	}
	return &p, nil
}

// InsertKekParams persists the install-time KDF parameters. Read-only
// after install.
func (d *DB) InsertKekParams(ctx context.Context, p *KekParamsRow) error {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	_, err := d.sqlx.NamedExecContext(ctx, `
		INSERT INTO kek_params (salt, time_cost, memory_kib, threads) VALUES (:salt, :time_cost, :memory_kib, :threads)`, p)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// OprfSeed loads the wrapped OPRF seed.
func (d *DB) OprfSeed(ctx context.Context) (*OprfSeedRow, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	var s OprfSeedRow
	err := d.sqlx.GetContext(ctx, &s, `SELECT wrapped FROM oprf_seed LIMIT 1`)
	if err != nil {
		if ErrNoRows(err) {
			return nil, apperr.NotFound("oprf seed", err)
		}
		return nil, apperr.Internal(err)
	}
	return &s, nil
}

// InsertOprfSeed persists the wrapped OPRF seed. Never rotated.
func (d *DB) InsertOprfSeed(ctx context.Context, s *OprfSeedRow) error {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	_, err := d.sqlx.ExecContext(ctx, `INSERT INTO oprf_seed (wrapped) VALUES ($1)`, s.Wrapped)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// AkeServerKey loads the wrapped aPAKE engine static keypair.
func (d *DB) AkeServerKey(ctx context.Context) (*AkeServerKeyRow, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	var k AkeServerKeyRow
	err := d.sqlx.GetContext(ctx, &k, `SELECT wrapped_private_key, public_key FROM ake_server_key LIMIT 1`)
	if err != nil {
		if ErrNoRows(err) {
			return nil, apperr.NotFound("ake server key", err)
		}
		return nil, apperr.Internal(err)
	}
	return &k, nil
}

// InsertAkeServerKey persists the install-time static AKE keypair.
func (d *DB) InsertAkeServerKey(ctx context.Context, k *AkeServerKeyRow) error {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	_, err := d.sqlx.NamedExecContext(ctx, `
		INSERT INTO ake_server_key (wrapped_private_key, public_key) VALUES (:wrapped_private_key, :public_key)`, k)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// ActiveSigningKey loads the single row with rotated_at IS NULL.
func (d *DB) ActiveSigningKey(ctx context.Context) (*SigningKeyRow, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	var k SigningKeyRow
	err := d.sqlx.GetContext(ctx, &k, `SELECT * FROM signing_keys WHERE rotated_at IS NULL LIMIT 1`)
	if err != nil {
		if ErrNoRows(err) {
			return nil, apperr.NotFound("active signing key", err)
		}
		return nil, apperr.Internal(err)
	}
	return &k, nil
}

// AllSigningKeys lists every non-purged signing key.
func (d *DB) AllSigningKeys(ctx context.Context) ([]*SigningKeyRow, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	var keys []*SigningKeyRow
	err := d.sqlx.SelectContext(ctx, &keys, `SELECT * FROM signing_keys WHERE purged_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return keys, nil
}

// InsertFirstSigningKey persists the install-time signing key.
func (d *DB) InsertFirstSigningKey(ctx context.Context, k *SigningKeyRow) error {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	_, err := d.sqlx.NamedExecContext(ctx, `
		INSERT INTO signing_keys (kid, algorithm, wrapped_private_key, public_key, created_at, rotated_at, purged_at)
		VALUES (:kid, :algorithm, :wrapped_private_key, :public_key, :created_at, :rotated_at, :purged_at)`, k)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// RotateSigningKey inserts a new active key and retires the previous one
// in one transaction — "partial rotation must be impossible".
func (d *DB) RotateSigningKey(ctx context.Context, next *SigningKeyRow, now time.Time) error {
	return d.Tx(ctx, func(tx *sqlx.Tx) error {
		var prevKID string
		err := tx.GetContext(ctx, &prevKID, `SELECT kid FROM signing_keys WHERE rotated_at IS NULL LIMIT 1 FOR UPDATE`)
		if err != nil && !ErrNoRows(err) {
			return apperr.Internal(err)
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO signing_keys (kid, algorithm, wrapped_private_key, public_key, created_at, rotated_at, purged_at)
			VALUES (:kid, :algorithm, :wrapped_private_key, :public_key, :created_at, :rotated_at, :purged_at)`, next); err != nil {
			return apperr.Internal(err)
		}
		if prevKID != "" {
			if _, err := tx.ExecContext(ctx, `UPDATE signing_keys SET rotated_at = $2 WHERE kid = $1`, prevKID, now); err != nil {
				return apperr.Internal(err)
			}
		}
		return nil
	})
}

// PurgeSigningKey marks a retired key purged, dropping it from JWKS
// publication.
func (d *DB) PurgeSigningKey(ctx context.Context, kid string, now time.Time) error {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	_, err := d.sqlx.ExecContext(ctx, `UPDATE signing_keys SET purged_at = $2 WHERE kid = $1 AND rotated_at IS NOT NULL`, kid, now)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// CompleteInstall persists every bootstrap artifact — KEK params, OPRF
// seed, AKE static key, first signing key, first admin principal and
// credential — and consumes the install token, all in one transaction.
func (d *DB) CompleteInstall(ctx context.Context, tokenHash []byte, params *KekParamsRow, seed *OprfSeedRow, akeKey *AkeServerKeyRow, signingKey *SigningKeyRow, admin *AdminPrincipal, cred *Credential, now time.Time) error {
	return d.Tx(ctx, func(tx *sqlx.Tx) error {
		if err := d.ConsumeInstallToken(ctx, tx, tokenHash, now); err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO kek_params (salt, time_cost, memory_kib, threads) VALUES (:salt, :time_cost, :memory_kib, :threads)`, params); err != nil {
			return apperr.Internal(err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO oprf_seed (wrapped) VALUES ($1)`, seed.Wrapped); err != nil {
			return apperr.Internal(err)
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO ake_server_key (wrapped_private_key, public_key) VALUES (:wrapped_private_key, :public_key)`, akeKey); err != nil {
			return apperr.Internal(err)
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO signing_keys (kid, algorithm, wrapped_private_key, public_key, created_at, rotated_at, purged_at)
			VALUES (:kid, :algorithm, :wrapped_private_key, :public_key, :created_at, :rotated_at, :purged_at)`, signingKey); err != nil {
			return apperr.Internal(err)
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO admin_users (id, email, display_name, role, password_reset_required, created_at)
			VALUES (:id, :email, :display_name, :role, :password_reset_required, :created_at)`, admin); err != nil {
			return apperr.Internal(err)
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO credentials (principal_id, cohort, envelope, server_pub_key, export_key_hash, updated_at)
			VALUES (:principal_id, :cohort, :envelope, :server_pub_key, :export_key_hash, :updated_at)`, cred); err != nil {
			return apperr.Internal(err)
		}
		return nil
	})
}

// SettingByKey loads one settings row.
func (d *DB) SettingByKey(ctx context.Context, key string) (*Setting, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	var s Setting
	err := d.sqlx.GetContext(ctx, &s, `SELECT key, value, secure FROM settings WHERE key = $1`, key)
	if err != nil {
		if ErrNoRows(err) {
			return nil, apperr.NotFound("setting", err)
		}
		return nil, apperr.Internal(err)
	}
	return &s, nil
}

// UpsertSetting writes a settings row. Value is stored as given; no
// per-key validation is applied.
func (d *DB) UpsertSetting(ctx context.Context, s *Setting) error {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	_, err := d.sqlx.NamedExecContext(ctx, `
		INSERT INTO settings (key, value, secure) VALUES (:key, :value, :secure)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, secure = EXCLUDED.secure`, s)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// CreateInstallToken inserts a fresh, unconsumed install token hash. The
// cleartext token is generated and printed once by the install CLI
// command and never persisted.
func (d *DB) CreateInstallToken(ctx context.Context, tokenHash []byte, now time.Time) error {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	_, err := d.sqlx.ExecContext(ctx, `
		INSERT INTO install_tokens (token_hash, created_at) VALUES ($1, $2)`, tokenHash, now)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// InstallTokenValid reports whether the install token (identified by its
// hash) exists and is unconsumed.
func (d *DB) InstallTokenValid(ctx context.Context, tokenHash []byte) (bool, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	var consumedAt *time.Time
	err := d.sqlx.GetContext(ctx, &consumedAt, `SELECT consumed_at FROM install_tokens WHERE token_hash = $1`, tokenHash)
	if err != nil {
		if ErrNoRows(err) {
			return false, nil
		}
		return false, apperr.Internal(err)
	}
	return consumedAt == nil, nil
}

// ConsumeInstallToken marks the install token used, in the same
// transaction the caller uses to bootstrap KEK params / OPRF seed /
// first signing key / first admin.
func (d *DB) ConsumeInstallToken(ctx context.Context, tx *sqlx.Tx, tokenHash []byte, now time.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE install_tokens SET consumed_at = $2 WHERE token_hash = $1 AND consumed_at IS NULL`, tokenHash, now)
	if err != nil {
		return apperr.Internal(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.Forbidden("install token already used", nil)
	}
	return nil
}
