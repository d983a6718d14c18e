// Package rbac resolves a subject's active organization context at
// token-mint time: which organization
// applies, what role and deduplicated permissions that grants, and
// whether that organization requires OTP.
package rbac

import (
	"context"
	"sort"

	"github.com/darkauth/darkauth/internal/apperr"
	"github.com/darkauth/darkauth/internal/store"
)

// Store is the subset of *store.DB this package needs.
type Store interface {
	ActiveMembershipsForSubject(ctx context.Context, subject string) ([]store.ActiveMembership, error)
	PermissionsForRole(ctx context.Context, roleID string) ([]string, error)
	OrganizationRequiresOtp(ctx context.Context, orgID string) (bool, error)
}

// Context is the resolved claim set attached to an issued token.
type Context struct {
	OrgID       string
	OrgSlug     string
	RoleName    string
	Permissions []string
	RequireOtp  bool
}

// Resolver implements the RbacResolver contract.
type Resolver struct {
	store Store
}

func NewResolver(s Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve picks the subject's active organization. With zero active
// memberships, token minting has nothing to attach and must hard-fail,
// not silently mint an unscoped token. With exactly one membership, that
// one is used
// automatically. With more than one, requestedOrgID must name which one
// — an ambiguous request without it is rejected rather than guessed at.
func (r *Resolver) Resolve(ctx context.Context, subject, requestedOrgID string) (*Context, error) {
	memberships, err := r.store.ActiveMembershipsForSubject(ctx, subject)
	if err != nil {
		return nil, err
	}
	if len(memberships) == 0 {
		return nil, apperr.Forbidden("no_active_membership", nil)
	}

	var chosen *store.ActiveMembership
	switch {
	case requestedOrgID != "":
		for i := range memberships {
			if memberships[i].OrgID == requestedOrgID {
				chosen = &memberships[i]
				break
			}
		}
		if chosen == nil {
			return nil, apperr.Forbidden("not a member of the requested organization", nil)
		}
	case len(memberships) == 1:
		chosen = &memberships[0]
	default:
		return nil, apperr.Validation("org_id is required: subject belongs to more than one organization", nil)
	}

	permissions, err := r.store.PermissionsForRole(ctx, chosen.RoleID)
	if err != nil {
		return nil, err
	}
	sort.Strings(permissions)

	requireOtp, err := r.store.OrganizationRequiresOtp(ctx, chosen.OrgID)
	if err != nil {
		return nil, err
	}

	return &Context{
		OrgID:       chosen.OrgID,
		OrgSlug:     chosen.OrgSlug,
		RoleName:    chosen.RoleName,
		Permissions: permissions,
		RequireOtp:  requireOtp,
	}, nil
}
