package auth

import "fmt"

// Action names an operation a subject may attempt against a principal
// record.
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionCreate Action = "create"
	ActionDelete Action = "delete"
	ActionList   Action = "list"
)

// ScopeFilter narrows a principal listing to what the subject may see.
// Nil fields mean "unrestricted at this level".
type ScopeFilter struct {
	TenantID    string
	TeamID      *string
	PrincipalID *string
}

// Allows decides whether subject may perform action on target.
// Tenant isolation is checked first and dominates every role rule, so a
// cross-tenant denial is indistinguishable from the record not existing.
func Allows(subject PrincipalContext, action Action, target Principal) error {
	if subject.TenantID != target.TenantID {
		return ErrForbidden
	}
	switch subject.Role {
	case RoleTenantAdmin:
		return nil
	case RoleManager:
		if action == ActionDelete || action == ActionCreate {
			return ErrForbidden
		}
		if subject.TeamID == nil || target.TeamID == nil || *subject.TeamID != *target.TeamID {
			return ErrForbidden
		}
		return nil
	case RoleMember:
		if action != ActionRead && action != ActionWrite {
			return ErrForbidden
		}
		if subject.PrincipalID != target.ID {
			return ErrForbidden
		}
		return nil
	}
	return ErrForbidden
}

// Permits gates actions that have no single target record (create, list).
func Permits(subject PrincipalContext, action Action) bool {
	switch subject.Role {
	case RoleTenantAdmin:
		return true
	case RoleManager:
		return action == ActionList || action == ActionRead || action == ActionWrite
	case RoleMember:
		return action == ActionRead || action == ActionWrite
	}
	return false
}

// Scope builds the listing filter for a subject: admins see the tenant,
// managers their team, members only themselves.
func Scope(subject PrincipalContext) ScopeFilter {
	f := ScopeFilter{TenantID: subject.TenantID}
	switch subject.Role {
	case RoleTenantAdmin:
	case RoleManager:
		f.TeamID = subject.TeamID
	case RoleMember:
		id := subject.PrincipalID
		f.PrincipalID = &id
	}
	return f
}

// ValidateRoleAssignment enforces the write-time role/team invariant:
// managers must carry a team, tenant admins must not. Runs before any
// persistence, on create and on update alike.
func ValidateRoleAssignment(role Role, teamID *string) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidRoleAssignment, role)
	}
	switch role {
	case RoleManager:
		if teamID == nil || *teamID == "" {
			return fmt.Errorf("%w: role %s requires a team", ErrInvalidRoleAssignment, role)
		}
	case RoleTenantAdmin:
		if teamID != nil {
			return fmt.Errorf("%w: role %s must not carry a team", ErrInvalidRoleAssignment, role)
		}
	}
	return nil
}
