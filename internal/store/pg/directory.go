package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"crewdock.org/internal/auth"
)

// TenantStore persists tenants.
type TenantStore struct {
	db *sql.DB
}

func (s *TenantStore) Create(ctx context.Context, t auth.Tenant) (auth.Tenant, error) {
	const q = `
		insert into tenants (id, name, domain, created_at)
		values ($1, $2, $3, $4)
		returning id, name, domain, created_at`
	row := s.db.QueryRowContext(ctx, q, t.ID, t.Name, t.Domain, t.CreatedAt)
	return scanTenant(row)
}

func (s *TenantStore) Find(ctx context.Context, id string) (auth.Tenant, error) {
	const q = `select id, name, domain, created_at from tenants where id = $1`
	return scanTenant(s.db.QueryRowContext(ctx, q, id))
}

func (s *TenantStore) FindByDomain(ctx context.Context, domain string) (auth.Tenant, error) {
	const q = `select id, name, domain, created_at from tenants where domain = $1`
	return scanTenant(s.db.QueryRowContext(ctx, q, domain))
}

func (s *TenantStore) List(ctx context.Context) ([]auth.Tenant, error) {
	const q = `select id, name, domain, created_at from tenants order by created_at`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var out []auth.Tenant
	for rows.Next() {
		var t auth.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Domain, &t.CreatedAt); err != nil {
			return nil, mapPgError(err)
		}
		out = append(out, t)
	}
	return out, mapPgError(rows.Err())
}

func (s *TenantStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from tenants where id = $1`, id)
	if err != nil {
		return mapPgError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func scanTenant(row *sql.Row) (auth.Tenant, error) {
	var t auth.Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.Domain, &t.CreatedAt); err != nil {
		return auth.Tenant{}, mapPgError(err)
	}
	return t, nil
}

// PrincipalStore persists principals.
type PrincipalStore struct {
	db *sql.DB
}

const principalCols = `id, tenant_id, email, role, team_id, created_at`

func (s *PrincipalStore) Create(ctx context.Context, p auth.Principal) (auth.Principal, error) {
	const q = `
		insert into principals (id, tenant_id, email, role, team_id, created_at)
		values ($1, $2, $3, $4, $5, $6)
		returning ` + principalCols
	row := s.db.QueryRowContext(ctx, q, p.ID, p.TenantID, p.Email, p.Role, p.TeamID, p.CreatedAt)
	return scanPrincipal(row)
}

func (s *PrincipalStore) Find(ctx context.Context, id string) (auth.Principal, error) {
	const q = `select ` + principalCols + ` from principals where id = $1`
	return scanPrincipal(s.db.QueryRowContext(ctx, q, id))
}

func (s *PrincipalStore) FindByEmail(ctx context.Context, email string) (auth.Principal, error) {
	const q = `select ` + principalCols + ` from principals where email = $1`
	return scanPrincipal(s.db.QueryRowContext(ctx, q, email))
}

// List applies the scope filter: tenant always, then optionally team or
// a single principal.
func (s *PrincipalStore) List(ctx context.Context, filter auth.ScopeFilter) ([]auth.Principal, error) {
	q := `select ` + principalCols + ` from principals where tenant_id = $1`
	args := []any{filter.TenantID}
	if filter.TeamID != nil {
		args = append(args, *filter.TeamID)
		q += fmt.Sprintf(" and team_id = $%d", len(args))
	}
	if filter.PrincipalID != nil {
		args = append(args, *filter.PrincipalID)
		q += fmt.Sprintf(" and id = $%d", len(args))
	}
	q += " order by created_at"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var out []auth.Principal
	for rows.Next() {
		var p auth.Principal
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Email, &p.Role, &p.TeamID, &p.CreatedAt); err != nil {
			return nil, mapPgError(err)
		}
		out = append(out, p)
	}
	return out, mapPgError(rows.Err())
}

// Update builds a dynamic set clause from the non-nil fields.
func (s *PrincipalStore) Update(ctx context.Context, id string, upd auth.PrincipalUpdate) (auth.Principal, error) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.Email != nil {
		add("email", *upd.Email)
	}
	if upd.Role != nil {
		add("role", *upd.Role)
	}
	if upd.ClearTeamID {
		sets = append(sets, "team_id = null")
	} else if upd.TeamID != nil {
		add("team_id", *upd.TeamID)
	}
	if len(sets) == 0 {
		return s.Find(ctx, id)
	}
	args = append(args, id)
	q := fmt.Sprintf(
		`update principals set %s where id = $%d returning `+principalCols,
		strings.Join(sets, ", "), len(args),
	)
	return scanPrincipal(s.db.QueryRowContext(ctx, q, args...))
}

func (s *PrincipalStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from principals where id = $1`, id)
	if err != nil {
		return mapPgError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func scanPrincipal(row *sql.Row) (auth.Principal, error) {
	var p auth.Principal
	if err := row.Scan(&p.ID, &p.TenantID, &p.Email, &p.Role, &p.TeamID, &p.CreatedAt); err != nil {
		return auth.Principal{}, mapPgError(err)
	}
	return p, nil
}
