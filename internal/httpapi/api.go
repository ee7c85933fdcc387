// Package httpapi is the thin HTTP transport over the authentication
// core: JSON in, JSON out, typed errors mapped to status codes.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"crewdock.org/internal/auth"
	"crewdock.org/internal/obs"
)

// AuthService is the slice of the lifecycle service the transport uses.
type AuthService interface {
	RequestLink(ctx context.Context, email string) (auth.IssuedLink, error)
	Redeem(ctx context.Context, secret string) (auth.RedeemResult, error)
	Validate(ctx context.Context, refreshSecret string) (auth.PrincipalContext, error)
	Refresh(ctx context.Context, refreshSecret string) (string, time.Time, error)
	Revoke(ctx context.Context, refreshSecret string) error
	RevokeAll(ctx context.Context, principalID string) error
	VerifyAccess(token string) (auth.PrincipalContext, error)
}

// DirectoryService is the slice of the directory the transport uses.
type DirectoryService interface {
	CreateTenant(ctx context.Context, name, domain string) (auth.Tenant, error)
	GetTenant(ctx context.Context, subject auth.PrincipalContext) (auth.Tenant, error)
	CreatePrincipal(ctx context.Context, subject auth.PrincipalContext, email string, role auth.Role, teamID *string) (auth.Principal, error)
	GetPrincipal(ctx context.Context, subject auth.PrincipalContext, id string) (auth.Principal, error)
	ListPrincipals(ctx context.Context, subject auth.PrincipalContext) ([]auth.Principal, error)
	UpdatePrincipal(ctx context.Context, subject auth.PrincipalContext, id string, upd auth.PrincipalUpdate) (auth.Principal, error)
	DeletePrincipal(ctx context.Context, subject auth.PrincipalContext, id string) error
}

// ReadyProbe reports whether downstream dependencies are reachable.
type ReadyProbe func(ctx context.Context) error

// API wires handlers, middleware and routes.
type API struct {
	authn   AuthService
	dir     DirectoryService
	ready   ReadyProbe
	version string
	mux     *http.ServeMux
	handler http.Handler
}

// Config carries the API collaborators.
type Config struct {
	Auth      AuthService
	Directory DirectoryService
	Ready     ReadyProbe
	Version   string
}

// New assembles the HTTP API.
func New(cfg Config) *API {
	a := &API{
		authn:   cfg.Auth,
		dir:     cfg.Directory,
		ready:   cfg.Ready,
		version: cfg.Version,
		mux:     http.NewServeMux(),
	}
	a.routes()

	limiter := newIPLimiter(rate.Limit(50), 100)
	var h http.Handler = a.mux
	h = limiter.middleware(h)
	h = withClientID(h)
	h = withLogging(h)
	h = withSecurityHeaders(h)
	h = withRequestID(h)
	a.handler = h
	return a
}

func (a *API) routes() {
	handle := func(pattern, route string, h http.HandlerFunc) {
		a.mux.Handle(pattern, obs.Instrument(route, h))
	}

	handle("POST /v1/tenants", "tenants.create", a.handleCreateTenant)
	handle("GET /v1/tenant", "tenant.get", a.withAccess(a.handleGetTenant))

	handle("POST /v1/auth/link", "auth.link", a.withOptionalAccess(a.handleRequestLink))
	handle("POST /v1/auth/redeem", "auth.redeem", a.handleRedeem)
	handle("GET /v1/auth/session", "auth.session", a.handleSession)
	handle("POST /v1/auth/refresh", "auth.refresh", a.handleRefresh)
	handle("POST /v1/auth/logout", "auth.logout", a.handleLogout)
	handle("POST /v1/auth/logout_all", "auth.logout_all", a.withAccess(a.handleLogoutAll))

	handle("POST /v1/principals", "principals.create", a.withAccess(a.handleCreatePrincipal))
	handle("GET /v1/principals", "principals.list", a.withAccess(a.handleListPrincipals))
	handle("GET /v1/principals/{id}", "principals.get", a.withAccess(a.handleGetPrincipal))
	handle("PATCH /v1/principals/{id}", "principals.update", a.withAccess(a.handleUpdatePrincipal))
	handle("DELETE /v1/principals/{id}", "principals.delete", a.withAccess(a.handleDeletePrincipal))

	a.mux.HandleFunc("GET /healthz", a.handleHealth)
	a.mux.HandleFunc("GET /readyz", a.handleReady)
	a.mux.Handle("GET /metrics", obs.MetricsHandler())
}

// Handler returns the fully wrapped handler.
func (a *API) Handler() http.Handler { return a.handler }

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": a.version,
	})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.ready != nil {
		if err := a.ready(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
