package store

import (
	"context"

	"github.com/darkauth/darkauth/internal/apperr"
)

// ListAuditLogs returns the most recent audit events, newest first,
// capped at limit.
func (d *DB) ListAuditLogs(ctx context.Context, limit int) ([]*AuditLog, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	var logs []*AuditLog
	err := d.sqlx.SelectContext(ctx, &logs, `
		SELECT * FROM audit_logs ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return logs, nil
}

// AuditLogByID loads a single audit event for the detail view.
func (d *DB) AuditLogByID(ctx context.Context, id string) (*AuditLog, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	var a AuditLog
	err := d.sqlx.GetContext(ctx, &a, `SELECT * FROM audit_logs WHERE id = $1`, id)
	if err != nil {
		if ErrNoRows(err) {
			return nil, apperr.NotFound("audit log", err)
		}
		return nil, apperr.Internal(err)
	}
	return &a, nil
}

// InsertAuditLog appends one audit event. The only caller is
// internal/audit.Logger's background drain goroutine, which already
// redacted the request body and never lets a write failure here
// propagate to the originating request — it logs and drops instead.
func (d *DB) InsertAuditLog(ctx context.Context, a *AuditLog) error {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	_, err := d.sqlx.NamedExecContext(ctx, `
		INSERT INTO audit_logs
			(id, event_type, method, path, cohort, subject_id, admin_id, client_id,
			 ip_address, user_agent, success, status_code, error_code, resource_type,
			 resource_id, action, request_body_redacted, response_time_ms, timestamp)
		VALUES
			(:id, :event_type, :method, :path, :cohort, :subject_id, :admin_id, :client_id,
			 :ip_address, :user_agent, :success, :status_code, :error_code, :resource_type,
			 :resource_id, :action, :request_body_redacted, :response_time_ms, :timestamp)`, a)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}
