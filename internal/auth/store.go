package auth

import (
	"context"
	"time"
)

// Store is the persistence boundary of the authentication core. The pg
// implementation lives in internal/store/pg; tests use in-memory fakes.
type Store interface {
	Tenants() TenantStore
	Principals() PrincipalStore
	MagicLinks() MagicLinkStore
	Sessions() SessionStore
}

type TenantStore interface {
	Create(ctx context.Context, t Tenant) (Tenant, error)
	Find(ctx context.Context, id string) (Tenant, error)
	FindByDomain(ctx context.Context, domain string) (Tenant, error)
	List(ctx context.Context) ([]Tenant, error)
	Delete(ctx context.Context, id string) error
}

// PrincipalUpdate is a partial update; nil fields are left untouched.
type PrincipalUpdate struct {
	Email  *string
	Role   *Role
	TeamID *string
	// ClearTeamID removes the team assignment; it wins over TeamID.
	ClearTeamID bool
}

type PrincipalStore interface {
	Create(ctx context.Context, p Principal) (Principal, error)
	Find(ctx context.Context, id string) (Principal, error)
	FindByEmail(ctx context.Context, email string) (Principal, error)
	List(ctx context.Context, filter ScopeFilter) ([]Principal, error)
	Update(ctx context.Context, id string, upd PrincipalUpdate) (Principal, error)
	Delete(ctx context.Context, id string) error
}

type MagicLinkStore interface {
	Create(ctx context.Context, l MagicLink) (MagicLink, error)
	FindByHash(ctx context.Context, tokenHash string) (MagicLink, error)
	// DeleteUnredeemed removes every link of the principal whose used_at
	// is still null, so at most one live link exists per principal.
	DeleteUnredeemed(ctx context.Context, principalID string) (int64, error)
	// Consume marks the link used if and only if it has not been used
	// yet. Returns false when another redemption won the race.
	Consume(ctx context.Context, id string, at time.Time) (bool, error)
	// DeleteExpired removes links that are expired or already used.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type SessionStore interface {
	Create(ctx context.Context, s Session) (Session, error)
	FindByHash(ctx context.Context, tokenHash string) (Session, error)
	DeleteByHash(ctx context.Context, tokenHash string) (int64, error)
	DeleteByPrincipal(ctx context.Context, principalID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
