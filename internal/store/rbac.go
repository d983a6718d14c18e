package store

import (
	"context"

	"github.com/darkauth/darkauth/internal/apperr"
)

// ActiveMembership is a resolved membership row joined with its
// organization and role, the shape RbacResolver needs.
type ActiveMembership struct {
	OrgID    string `db:"org_id"`
	OrgSlug  string `db:"org_slug"`
	RoleID   string `db:"role_id"`
	RoleName string `db:"role_name"`
}

// ActiveMembershipsForSubject lists every active membership for subject,
// each joined with its organization and role.
func (d *DB) ActiveMembershipsForSubject(ctx context.Context, subject string) ([]ActiveMembership, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	var rows []ActiveMembership
	err := d.sqlx.SelectContext(ctx, &rows, `
		SELECT o.id AS org_id, o.slug AS org_slug, r.id AS role_id, r.name AS role_name
		FROM memberships m
		JOIN organizations o ON o.id = m.org_id
		JOIN roles r ON r.id = m.role_id
		WHERE m.subject = $1 AND m.status = 'active'`, subject)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return rows, nil
}

// PermissionsForRole returns the deduplicated permission names granted to
// a role.
func (d *DB) PermissionsForRole(ctx context.Context, roleID string) ([]string, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	var names []string
	err := d.sqlx.SelectContext(ctx, &names, `
		SELECT DISTINCT p.name
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1`, roleID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return names, nil
}

// OrganizationRequiresOtp reports an organization's requireOtp flag.
func (d *DB) OrganizationRequiresOtp(ctx context.Context, orgID string) (bool, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	var required bool
	err := d.sqlx.GetContext(ctx, &required, `SELECT require_otp FROM organizations WHERE id = $1`, orgID)
	if err != nil {
		if ErrNoRows(err) {
			return false, apperr.NotFound("organization", err)
		}
		return false, apperr.Internal(err)
	}
	return required, nil
}
