package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/darkauth/darkauth/internal/apperr"
)

// TotpByPrincipal loads the TOTP state row, if any, for a principal.
func (d *DB) TotpByPrincipal(ctx context.Context, principalID, cohort string) (*TotpRecord, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	var t TotpRecord
	err := d.sqlx.GetContext(ctx, &t, `
		SELECT principal_id, cohort, wrapped_secret, status, created_at, last_used_at, failure_count, locked_until
		FROM totp_records WHERE principal_id = $1 AND cohort = $2`, principalID, cohort)
	if err != nil {
		if ErrNoRows(err) {
			return nil, apperr.NotFound("totp record", err)
		}
		return nil, apperr.Internal(err)
	}
	hashes, err := d.backupCodeHashes(ctx, principalID, cohort)
	if err != nil {
		return nil, err
	}
	t.BackupCodeHashes = hashes
	return &t, nil
}

func (d *DB) backupCodeHashes(ctx context.Context, principalID, cohort string) ([][]byte, error) {
	var rows [][]byte
	err := d.sqlx.SelectContext(ctx, &rows, `
		SELECT code_hash FROM totp_backup_codes
		WHERE principal_id = $1 AND cohort = $2 AND used_at IS NULL`, principalID, cohort)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return rows, nil
}

// UpsertTotpPending creates (or replaces, if still pending) the wrapped
// secret for setup-init, leaving status "pending" until setup-verify
// succeeds.
func (d *DB) UpsertTotpPending(ctx context.Context, principalID, cohort string, wrappedSecret []byte, now time.Time) error {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	_, err := d.sqlx.ExecContext(ctx, `
		INSERT INTO totp_records (principal_id, cohort, wrapped_secret, status, created_at, failure_count)
		VALUES ($1, $2, $3, 'pending', $4, 0)
		ON CONFLICT (principal_id, cohort) DO UPDATE SET
			wrapped_secret = EXCLUDED.wrapped_secret, status = 'pending', failure_count = 0, locked_until = NULL
			WHERE totp_records.status != 'enabled'`, principalID, cohort, wrappedSecret, now)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// EnableTotp transitions pending -> enabled and stores the hashed backup
// codes generated at setup-verify time.
func (d *DB) EnableTotp(ctx context.Context, principalID, cohort string, backupHashes [][]byte, now time.Time) error {
	return d.Tx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE totp_records SET status = 'enabled', last_used_at = $3
			WHERE principal_id = $1 AND cohort = $2`, principalID, cohort, now); err != nil {
			return apperr.Internal(err)
		}
		for _, h := range backupHashes {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO totp_backup_codes (principal_id, cohort, code_hash) VALUES ($1, $2, $3)`,
				principalID, cohort, h); err != nil {
				return apperr.Internal(err)
			}
		}
		return nil
	})
}

// RecordTotpSuccess resets the failure counter and stamps lastUsedAt.
func (d *DB) RecordTotpSuccess(ctx context.Context, principalID, cohort string, now time.Time) error {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	_, err := d.sqlx.ExecContext(ctx, `
		UPDATE totp_records SET failure_count = 0, locked_until = NULL, last_used_at = $3
		WHERE principal_id = $1 AND cohort = $2`, principalID, cohort, now)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// RecordTotpFailure increments the failure counter and, once it reaches
// maxFailures, sets lockedUntil = now + lockDuration.
func (d *DB) RecordTotpFailure(ctx context.Context, principalID, cohort string, now time.Time, maxFailures int, lockDuration time.Duration) error {
	return d.Tx(ctx, func(tx *sqlx.Tx) error {
		var failureCount int
		err := tx.GetContext(ctx, &failureCount, `
			UPDATE totp_records SET failure_count = failure_count + 1
			WHERE principal_id = $1 AND cohort = $2
			RETURNING failure_count`, principalID, cohort)
		if err != nil {
			return apperr.Internal(err)
		}
		if failureCount >= maxFailures {
			lockedUntil := now.Add(lockDuration)
			if _, err := tx.ExecContext(ctx, `
				UPDATE totp_records SET locked_until = $3
				WHERE principal_id = $1 AND cohort = $2`, principalID, cohort, lockedUntil); err != nil {
				return apperr.Internal(err)
			}
		}
		return nil
	})
}

// ConsumeBackupCode marks a single backup code used; returns false if it
// was already used or unknown.
func (d *DB) ConsumeBackupCode(ctx context.Context, principalID, cohort string, hash []byte, now time.Time) (bool, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	res, err := d.sqlx.ExecContext(ctx, `
		UPDATE totp_backup_codes SET used_at = $4
		WHERE principal_id = $1 AND cohort = $2 AND code_hash = $3 AND used_at IS NULL`,
		principalID, cohort, hash, now)
	if err != nil {
		return false, apperr.Internal(err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// DisableTotp removes the TOTP record and backup codes entirely.
func (d *DB) DisableTotp(ctx context.Context, principalID, cohort string) error {
	return d.Tx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM totp_backup_codes WHERE principal_id = $1 AND cohort = $2`, principalID, cohort); err != nil {
			return apperr.Internal(err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM totp_records WHERE principal_id = $1 AND cohort = $2`, principalID, cohort); err != nil {
			return apperr.Internal(err)
		}
		return nil
	})
}
