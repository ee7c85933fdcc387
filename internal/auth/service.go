package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crewdock.org/internal/ids"
)

const (
	// DefaultLinkTTL is how long a magic link stays redeemable.
	DefaultLinkTTL = 24 * time.Hour
	// DefaultSessionTTL is the refresh session lifetime.
	DefaultSessionTTL = 30 * 24 * time.Hour
)

// Rate limit route keys, shared with the limiter so counters are scoped
// per operation.
const (
	RouteRequestLink = "auth.request_link"
	RouteRedeem      = "auth.redeem"
)

// RateLimiter is an injected capability consulted before the abusable
// operations. Implementations must be safe for concurrent use.
type RateLimiter interface {
	// Allow returns nil when the call may proceed, ErrRateLimited when
	// the caller exhausted the window, or a wrapped infrastructure error.
	Allow(ctx context.Context, route, identifier string) error
}

// Service implements the magic-link and session lifecycle on top of a
// Store. All mutation funnels through the store; the service itself
// holds no mutable state, so it is safe for concurrent use.
type Service struct {
	store      Store
	creds      *CredentialManager
	limiter    RateLimiter
	now        func() time.Time
	linkTTL    time.Duration
	sessionTTL time.Duration
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the service clock. Test hook.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLinkTTL overrides the magic-link lifetime.
func WithLinkTTL(ttl time.Duration) Option {
	return func(s *Service) { s.linkTTL = ttl }
}

// WithSessionTTL overrides the refresh session lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) { s.sessionTTL = ttl }
}

// WithRateLimiter injects the abuse-control capability. Without one the
// service does not throttle.
func WithRateLimiter(l RateLimiter) Option {
	return func(s *Service) { s.limiter = l }
}

// NewService builds the lifecycle service.
func NewService(store Store, creds *CredentialManager, opts ...Option) *Service {
	s := &Service{
		store:      store,
		creds:      creds,
		now:        time.Now,
		linkTTL:    DefaultLinkTTL,
		sessionTTL: DefaultSessionTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) allow(ctx context.Context, route, identifier string) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Allow(ctx, route, identifier)
}

// RequestLink issues a fresh magic link for the principal registered
// under email. Any earlier unredeemed link is invalidated first, so at
// most one live link exists per principal. The plaintext secret is
// returned for out-of-band delivery and never persisted.
func (s *Service) RequestLink(ctx context.Context, email string) (IssuedLink, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return IssuedLink{}, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if err := s.allow(ctx, RouteRequestLink, email); err != nil {
		return IssuedLink{}, err
	}

	principal, err := s.store.Principals().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return IssuedLink{}, ErrPrincipalNotFound
		}
		return IssuedLink{}, fmt.Errorf("find principal: %w", err)
	}

	if _, err := s.store.MagicLinks().DeleteUnredeemed(ctx, principal.ID); err != nil {
		return IssuedLink{}, fmt.Errorf("invalidate prior links: %w", err)
	}

	secret, digest, err := NewSecret()
	if err != nil {
		return IssuedLink{}, err
	}
	now := s.now().UTC()
	link := MagicLink{
		ID:          ids.New(),
		PrincipalID: principal.ID,
		TokenHash:   digest,
		ExpiresAt:   now.Add(s.linkTTL),
		CreatedAt:   now,
	}
	if _, err := s.store.MagicLinks().Create(ctx, link); err != nil {
		return IssuedLink{}, fmt.Errorf("create magic link: %w", err)
	}
	return IssuedLink{Secret: secret, ExpiresAt: link.ExpiresAt}, nil
}

// Redeem consumes a magic link and opens a session. The mark-used step
// is a conditional update keyed on used_at being null, so concurrent
// redemptions of the same link cannot both succeed.
func (s *Service) Redeem(ctx context.Context, secret string) (RedeemResult, error) {
	// The counter is keyed by caller identity, not by token: a guessing
	// caller burns one shared window no matter how many distinct
	// secrets they try.
	identifier := ClientFromContext(ctx)
	if identifier == "" {
		identifier = "unknown"
	}
	if err := s.allow(ctx, RouteRedeem, identifier); err != nil {
		return RedeemResult{}, err
	}
	if !ValidSecretShape(secret) {
		return RedeemResult{}, ErrInvalidToken
	}

	link, err := s.store.MagicLinks().FindByHash(ctx, HashSecret(secret))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return RedeemResult{}, ErrInvalidToken
		}
		return RedeemResult{}, fmt.Errorf("find magic link: %w", err)
	}

	now := s.now().UTC()
	if !now.Before(link.ExpiresAt) {
		return RedeemResult{}, ErrTokenExpired
	}
	if link.UsedAt != nil {
		return RedeemResult{}, ErrTokenAlreadyUsed
	}
	ok, err := s.store.MagicLinks().Consume(ctx, link.ID, now)
	if err != nil {
		return RedeemResult{}, fmt.Errorf("consume magic link: %w", err)
	}
	if !ok {
		// Lost the race to a concurrent redemption.
		return RedeemResult{}, ErrTokenAlreadyUsed
	}

	principal, err := s.store.Principals().Find(ctx, link.PrincipalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return RedeemResult{}, ErrPrincipalNotFound
		}
		return RedeemResult{}, fmt.Errorf("find principal: %w", err)
	}

	refreshSecret, refreshDigest, err := NewSecret()
	if err != nil {
		return RedeemResult{}, err
	}
	session := Session{
		ID:          ids.New(),
		PrincipalID: principal.ID,
		TokenHash:   refreshDigest,
		ExpiresAt:   now.Add(s.sessionTTL),
		CreatedAt:   now,
	}
	if _, err := s.store.Sessions().Create(ctx, session); err != nil {
		return RedeemResult{}, fmt.Errorf("create session: %w", err)
	}

	accessToken, accessExpiresAt, err := s.creds.Issue(principal.Context())
	if err != nil {
		return RedeemResult{}, err
	}
	return RedeemResult{
		Principal:        principal,
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshSecret:    refreshSecret,
		RefreshExpiresAt: session.ExpiresAt,
	}, nil
}

// Validate checks a refresh secret and returns the minimal principal
// context. An expired session row is deleted lazily on the way out.
// The context is re-read from the principal row, so a role change is
// visible at the next validation rather than at session expiry.
func (s *Service) Validate(ctx context.Context, refreshSecret string) (PrincipalContext, error) {
	if !ValidSecretShape(refreshSecret) {
		return PrincipalContext{}, ErrInvalidSession
	}
	digest := HashSecret(refreshSecret)
	session, err := s.store.Sessions().FindByHash(ctx, digest)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return PrincipalContext{}, ErrInvalidSession
		}
		return PrincipalContext{}, fmt.Errorf("find session: %w", err)
	}
	if !s.now().UTC().Before(session.ExpiresAt) {
		// Lazy cleanup; the sweeper handles whatever this misses.
		if _, err := s.store.Sessions().DeleteByHash(ctx, digest); err != nil {
			return PrincipalContext{}, fmt.Errorf("delete expired session: %w", err)
		}
		return PrincipalContext{}, ErrSessionExpired
	}
	principal, err := s.store.Principals().Find(ctx, session.PrincipalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return PrincipalContext{}, ErrInvalidSession
		}
		return PrincipalContext{}, fmt.Errorf("find principal: %w", err)
	}
	return principal.Context(), nil
}

// Refresh validates the session and mints a fresh access credential.
// The refresh secret itself is not rotated.
func (s *Service) Refresh(ctx context.Context, refreshSecret string) (string, time.Time, error) {
	pc, err := s.Validate(ctx, refreshSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return s.creds.Issue(pc)
}

// Revoke deletes the session identified by refreshSecret. Revoking an
// unknown or already-revoked secret is a no-op.
func (s *Service) Revoke(ctx context.Context, refreshSecret string) error {
	if !ValidSecretShape(refreshSecret) {
		return nil
	}
	if _, err := s.store.Sessions().DeleteByHash(ctx, HashSecret(refreshSecret)); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeAll deletes every session owned by principalID. Idempotent.
func (s *Service) RevokeAll(ctx context.Context, principalID string) error {
	if principalID == "" {
		return fmt.Errorf("%w: principal id is required", ErrInvalidInput)
	}
	if _, err := s.store.Sessions().DeleteByPrincipal(ctx, principalID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

// Sweep removes expired or used magic links and expired sessions and
// reports how many rows each pass deleted.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	now := s.now().UTC()
	links, err := s.store.MagicLinks().DeleteExpired(ctx, now)
	if err != nil {
		return SweepResult{}, fmt.Errorf("sweep magic links: %w", err)
	}
	sessions, err := s.store.Sessions().DeleteExpired(ctx, now)
	if err != nil {
		return SweepResult{LinksRemoved: links}, fmt.Errorf("sweep sessions: %w", err)
	}
	return SweepResult{LinksRemoved: links, SessionsRemoved: sessions}, nil
}

// VerifyAccess verifies a bearer access credential.
func (s *Service) VerifyAccess(token string) (PrincipalContext, error) {
	return s.creds.Verify(token)
}
