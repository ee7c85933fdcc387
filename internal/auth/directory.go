package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crewdock.org/internal/ids"
)

// Directory exposes tenant and principal management behind the
// authorization policy. Every read is tenant-scoped: a record outside
// the subject's tenant is reported as absent, never as forbidden.
type Directory struct {
	store Store
	now   func() time.Time
}

// NewDirectory builds the directory service.
func NewDirectory(store Store, opts ...DirectoryOption) *Directory {
	d := &Directory{store: store, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DirectoryOption customizes a Directory.
type DirectoryOption func(*Directory)

// WithDirectoryClock overrides the directory clock. Test hook.
func WithDirectoryClock(now func() time.Time) DirectoryOption {
	return func(d *Directory) { d.now = now }
}

// CreateTenant registers a tenant. Unauthenticated bootstrap path; the
// transport decides who may call it.
func (d *Directory) CreateTenant(ctx context.Context, name, domain string) (Tenant, error) {
	name = strings.TrimSpace(name)
	domain = strings.ToLower(strings.TrimSpace(domain))
	if name == "" || domain == "" {
		return Tenant{}, fmt.Errorf("%w: name and domain are required", ErrInvalidInput)
	}
	t := Tenant{
		ID:        ids.New(),
		Name:      name,
		Domain:    domain,
		CreatedAt: d.now().UTC(),
	}
	created, err := d.store.Tenants().Create(ctx, t)
	if err != nil {
		return Tenant{}, fmt.Errorf("create tenant: %w", err)
	}
	return created, nil
}

// GetTenant returns the subject's own tenant.
func (d *Directory) GetTenant(ctx context.Context, subject PrincipalContext) (Tenant, error) {
	t, err := d.store.Tenants().Find(ctx, subject.TenantID)
	if err != nil {
		return Tenant{}, fmt.Errorf("find tenant: %w", err)
	}
	return t, nil
}

// CreatePrincipal adds a principal to the subject's tenant. The role
// invariant is validated before the store is touched.
func (d *Directory) CreatePrincipal(ctx context.Context, subject PrincipalContext, email string, role Role, teamID *string) (Principal, error) {
	if !Permits(subject, ActionCreate) {
		return Principal{}, ErrForbidden
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return Principal{}, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if err := ValidateRoleAssignment(role, teamID); err != nil {
		return Principal{}, err
	}
	p := Principal{
		ID:        ids.New(),
		TenantID:  subject.TenantID,
		Email:     email,
		Role:      role,
		TeamID:    teamID,
		CreatedAt: d.now().UTC(),
	}
	created, err := d.store.Principals().Create(ctx, p)
	if err != nil {
		return Principal{}, fmt.Errorf("create principal: %w", err)
	}
	return created, nil
}

// GetPrincipal returns a principal the subject may read. Out-of-tenant
// and nonexistent records are indistinguishable.
func (d *Directory) GetPrincipal(ctx context.Context, subject PrincipalContext, id string) (Principal, error) {
	p, err := d.store.Principals().Find(ctx, id)
	if err != nil {
		return Principal{}, fmt.Errorf("find principal: %w", err)
	}
	if p.TenantID != subject.TenantID {
		return Principal{}, ErrNotFound
	}
	if err := Allows(subject, ActionRead, p); err != nil {
		return Principal{}, err
	}
	return p, nil
}

// ListPrincipals returns the principals visible to the subject, per its
// scope filter.
func (d *Directory) ListPrincipals(ctx context.Context, subject PrincipalContext) ([]Principal, error) {
	if !Permits(subject, ActionList) {
		return nil, ErrForbidden
	}
	list, err := d.store.Principals().List(ctx, Scope(subject))
	if err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
	}
	return list, nil
}

// UpdatePrincipal applies a partial update after re-checking the role
// invariant against the resulting record.
func (d *Directory) UpdatePrincipal(ctx context.Context, subject PrincipalContext, id string, upd PrincipalUpdate) (Principal, error) {
	current, err := d.GetPrincipal(ctx, subject, id)
	if err != nil {
		return Principal{}, err
	}
	if err := Allows(subject, ActionWrite, current); err != nil {
		return Principal{}, err
	}
	// Role and team changes are administrative even on one's own record.
	if (upd.Role != nil || upd.TeamID != nil || upd.ClearTeamID) && subject.Role != RoleTenantAdmin {
		return Principal{}, ErrForbidden
	}

	role := current.Role
	if upd.Role != nil {
		role = *upd.Role
	}
	teamID := current.TeamID
	if upd.ClearTeamID {
		teamID = nil
	} else if upd.TeamID != nil {
		teamID = upd.TeamID
	}
	if err := ValidateRoleAssignment(role, teamID); err != nil {
		return Principal{}, err
	}

	updated, err := d.store.Principals().Update(ctx, id, upd)
	if err != nil {
		return Principal{}, fmt.Errorf("update principal: %w", err)
	}
	return updated, nil
}

// DeletePrincipal removes a principal. Tenant admins only; cascades in
// the schema take the principal's links and sessions with it.
func (d *Directory) DeletePrincipal(ctx context.Context, subject PrincipalContext, id string) error {
	current, err := d.GetPrincipal(ctx, subject, id)
	if err != nil {
		return err
	}
	if err := Allows(subject, ActionDelete, current); err != nil {
		return err
	}
	if err := d.store.Principals().Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("delete principal: %w", err)
	}
	return nil
}
