package auth

import "time"

// Role is the fixed set of principal roles within a tenant.
type Role string

const (
	RoleTenantAdmin Role = "TENANT_ADMIN"
	RoleManager     Role = "MANAGER"
	RoleMember      Role = "MEMBER"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleTenantAdmin, RoleManager, RoleMember:
		return true
	}
	return false
}

// Tenant is the identity boundary. Every principal belongs to exactly one.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain"`
	CreatedAt time.Time `json:"created_at"`
}

// Principal is a human actor inside a tenant. TeamID is required for
// managers and forbidden for tenant admins; see ValidateRoleAssignment.
type Principal struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	TeamID    *string   `json:"team_id"`
	CreatedAt time.Time `json:"created_at"`
}

// MagicLink is a single-use login credential request. Only the SHA-256
// digest of the opaque secret is persisted; the plaintext is returned once
// at issuance and never stored.
type MagicLink struct {
	ID          string
	PrincipalID string
	TokenHash   string
	UsedAt      *time.Time
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// Session is a long-lived refresh credential record, also stored only as
// the digest of its opaque secret.
type Session struct {
	ID          string
	PrincipalID string
	TokenHash   string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// PrincipalContext is the minimal identity handed to downstream consumers.
// It deliberately excludes email and other PII.
type PrincipalContext struct {
	PrincipalID string  `json:"principal_id"`
	Role        Role    `json:"role"`
	TenantID    string  `json:"tenant_id"`
	TeamID      *string `json:"team_id"`
}

// Context builds the minimal context for a principal.
func (p Principal) Context() PrincipalContext {
	return PrincipalContext{
		PrincipalID: p.ID,
		Role:        p.Role,
		TenantID:    p.TenantID,
		TeamID:      p.TeamID,
	}
}

// IssuedLink is the outcome of a magic-link request. Secret is handed to
// the out-of-band delivery channel and never persisted.
type IssuedLink struct {
	Secret    string
	ExpiresAt time.Time
}

// RedeemResult is the outcome of a successful magic-link redemption.
type RedeemResult struct {
	Principal        Principal
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshSecret    string
	RefreshExpiresAt time.Time
}

// SweepResult reports rows removed by a cleanup pass.
type SweepResult struct {
	LinksRemoved    int64
	SessionsRemoved int64
}
