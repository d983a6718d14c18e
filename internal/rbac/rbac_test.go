package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkauth/darkauth/internal/apperr"
	"github.com/darkauth/darkauth/internal/store"
)

type fakeStore struct {
	memberships []store.ActiveMembership
	permissions map[string][]string
	requireOtp  map[string]bool
}

func (f *fakeStore) ActiveMembershipsForSubject(_ context.Context, _ string) ([]store.ActiveMembership, error) {
	return f.memberships, nil
}

func (f *fakeStore) PermissionsForRole(_ context.Context, roleID string) ([]string, error) {
	return f.permissions[roleID], nil
}

func (f *fakeStore) OrganizationRequiresOtp(_ context.Context, orgID string) (bool, error) {
	return f.requireOtp[orgID], nil
}

func TestResolveZeroMembershipsFails(t *testing.T) {
	t.Parallel()
	r := NewResolver(&fakeStore{})
	_, err := r.Resolve(context.Background(), "subject-1", "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestResolveSingleMembershipAutoSelects(t *testing.T) {
	t.Parallel()
	fs := &fakeStore{
		memberships: []store.ActiveMembership{
			{OrgID: "org-1", OrgSlug: "acme", RoleID: "role-1", RoleName: "member"},
		},
		permissions: map[string][]string{"role-1": {"read:tools", "write:tools"}},
		requireOtp:  map[string]bool{"org-1": true},
	}
	r := NewResolver(fs)
	ctx, err := r.Resolve(context.Background(), "subject-1", "")
	require.NoError(t, err)
	assert.Equal(t, "org-1", ctx.OrgID)
	assert.Equal(t, "acme", ctx.OrgSlug)
	assert.True(t, ctx.RequireOtp)
	assert.Equal(t, []string{"read:tools", "write:tools"}, ctx.Permissions)
}

func TestResolveMultipleMembershipsWithoutOrgIDFails(t *testing.T) {
	t.Parallel()
	fs := &fakeStore{
		memberships: []store.ActiveMembership{
			{OrgID: "org-1", RoleID: "role-1"},
			{OrgID: "org-2", RoleID: "role-2"},
		},
	}
	r := NewResolver(fs)
	_, err := r.Resolve(context.Background(), "subject-1", "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestResolveMultipleMembershipsWithOrgIDSelects(t *testing.T) {
	t.Parallel()
	fs := &fakeStore{
		memberships: []store.ActiveMembership{
			{OrgID: "org-1", RoleID: "role-1", RoleName: "member"},
			{OrgID: "org-2", RoleID: "role-2", RoleName: "admin"},
		},
		permissions: map[string][]string{"role-2": {"admin:all"}},
	}
	r := NewResolver(fs)
	ctx, err := r.Resolve(context.Background(), "subject-1", "org-2")
	require.NoError(t, err)
	assert.Equal(t, "org-2", ctx.OrgID)
	assert.Equal(t, "admin", ctx.RoleName)
}

func TestResolveUnknownOrgIDFails(t *testing.T) {
	t.Parallel()
	fs := &fakeStore{
		memberships: []store.ActiveMembership{{OrgID: "org-1", RoleID: "role-1"}},
	}
	r := NewResolver(fs)
	_, err := r.Resolve(context.Background(), "subject-1", "org-nonexistent")
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestResolvePermissionsAreSorted(t *testing.T) {
	t.Parallel()
	fs := &fakeStore{
		memberships: []store.ActiveMembership{{OrgID: "org-1", RoleID: "role-1"}},
		permissions: map[string][]string{"role-1": {"write:tools", "read:tools"}},
	}
	r := NewResolver(fs)
	ctx, err := r.Resolve(context.Background(), "subject-1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"read:tools", "write:tools"}, ctx.Permissions)
}
