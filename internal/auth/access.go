package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultAccessTTL bounds how long a minted access credential stays
// valid. There is no revocation list; a revoked session's last access
// credential remains usable until this window closes.
const DefaultAccessTTL = 15 * time.Minute

// CredentialConfig configures the access credential manager.
type CredentialConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
}

// AccessClaims is the claim set carried by an access credential. The
// principal id travels in the registered Subject claim.
type AccessClaims struct {
	Role     Role    `json:"role"`
	TenantID string  `json:"tenant_id"`
	TeamID   *string `json:"team_id,omitempty"`
	jwt.RegisteredClaims
}

// CredentialManager mints and verifies short-lived signed access
// credentials (HS256).
type CredentialManager struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewCredentialManager validates cfg and builds a manager.
func NewCredentialManager(cfg CredentialConfig) (*CredentialManager, error) {
	if len(cfg.Secret) < 32 {
		return nil, fmt.Errorf("%w: signing secret must be at least 32 bytes", ErrInvalidInput)
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, fmt.Errorf("%w: issuer and audience are required", ErrInvalidInput)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultAccessTTL
	}
	return &CredentialManager{
		secret:   cfg.Secret,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// WithNow overrides the clock. Test hook.
func (m *CredentialManager) WithNow(now func() time.Time) *CredentialManager {
	m.now = now
	return m
}

// TTL reports the lifetime of minted credentials.
func (m *CredentialManager) TTL() time.Duration { return m.ttl }

// Issue mints a signed credential for pc. The claims freeze the
// principal's role and scope for the credential's lifetime.
func (m *CredentialManager) Issue(pc PrincipalContext) (string, time.Time, error) {
	now := m.now().UTC()
	expiresAt := now.Add(m.ttl)
	claims := AccessClaims{
		Role:     pc.Role,
		TenantID: pc.TenantID,
		TeamID:   pc.TeamID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   pc.PrincipalID,
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access credential: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify parses and validates a credential and returns the principal
// context it carries. Expiry is reported distinctly from every other
// defect.
func (m *CredentialManager) Verify(token string) (PrincipalContext, error) {
	var claims AccessClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return m.secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithTimeFunc(func() time.Time { return m.now() }),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return PrincipalContext{}, ErrCredentialExpired
		}
		return PrincipalContext{}, ErrCredentialInvalid
	}
	if claims.Subject == "" || claims.TenantID == "" || !claims.Role.Valid() {
		return PrincipalContext{}, ErrCredentialInvalid
	}
	return PrincipalContext{
		PrincipalID: claims.Subject,
		Role:        claims.Role,
		TenantID:    claims.TenantID,
		TeamID:      claims.TeamID,
	}, nil
}
