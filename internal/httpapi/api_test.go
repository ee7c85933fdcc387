package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crewdock.org/internal/auth"
)

type fakeAuth struct {
	requestLink func(ctx context.Context, email string) (auth.IssuedLink, error)
	redeem      func(ctx context.Context, secret string) (auth.RedeemResult, error)
	validate    func(ctx context.Context, secret string) (auth.PrincipalContext, error)
	refresh     func(ctx context.Context, secret string) (string, time.Time, error)
	revoke      func(ctx context.Context, secret string) error
	revokeAll   func(ctx context.Context, principalID string) error
	verify      func(token string) (auth.PrincipalContext, error)
}

func (f *fakeAuth) RequestLink(ctx context.Context, email string) (auth.IssuedLink, error) {
	return f.requestLink(ctx, email)
}
func (f *fakeAuth) Redeem(ctx context.Context, secret string) (auth.RedeemResult, error) {
	return f.redeem(ctx, secret)
}
func (f *fakeAuth) Validate(ctx context.Context, secret string) (auth.PrincipalContext, error) {
	return f.validate(ctx, secret)
}
func (f *fakeAuth) Refresh(ctx context.Context, secret string) (string, time.Time, error) {
	return f.refresh(ctx, secret)
}
func (f *fakeAuth) Revoke(ctx context.Context, secret string) error {
	return f.revoke(ctx, secret)
}
func (f *fakeAuth) RevokeAll(ctx context.Context, principalID string) error {
	return f.revokeAll(ctx, principalID)
}
func (f *fakeAuth) VerifyAccess(token string) (auth.PrincipalContext, error) {
	if f.verify == nil {
		return auth.PrincipalContext{}, auth.ErrCredentialInvalid
	}
	return f.verify(token)
}

type fakeDirectory struct {
	getPrincipal   func(ctx context.Context, subject auth.PrincipalContext, id string) (auth.Principal, error)
	listPrincipals func(ctx context.Context, subject auth.PrincipalContext) ([]auth.Principal, error)
}

func (f *fakeDirectory) CreateTenant(context.Context, string, string) (auth.Tenant, error) {
	return auth.Tenant{}, auth.ErrInvalidInput
}
func (f *fakeDirectory) GetTenant(context.Context, auth.PrincipalContext) (auth.Tenant, error) {
	return auth.Tenant{}, auth.ErrNotFound
}
func (f *fakeDirectory) CreatePrincipal(context.Context, auth.PrincipalContext, string, auth.Role, *string) (auth.Principal, error) {
	return auth.Principal{}, auth.ErrForbidden
}
func (f *fakeDirectory) GetPrincipal(ctx context.Context, subject auth.PrincipalContext, id string) (auth.Principal, error) {
	if f.getPrincipal == nil {
		return auth.Principal{}, auth.ErrNotFound
	}
	return f.getPrincipal(ctx, subject, id)
}
func (f *fakeDirectory) ListPrincipals(ctx context.Context, subject auth.PrincipalContext) ([]auth.Principal, error) {
	if f.listPrincipals == nil {
		return nil, auth.ErrForbidden
	}
	return f.listPrincipals(ctx, subject)
}
func (f *fakeDirectory) UpdatePrincipal(context.Context, auth.PrincipalContext, string, auth.PrincipalUpdate) (auth.Principal, error) {
	return auth.Principal{}, auth.ErrForbidden
}
func (f *fakeDirectory) DeletePrincipal(context.Context, auth.PrincipalContext, string) error {
	return auth.ErrForbidden
}

func testAPI(fa *fakeAuth, fd *fakeDirectory) *API {
	if fd == nil {
		fd = &fakeDirectory{}
	}
	return New(Config{Auth: fa, Directory: fd, Version: "test"})
}

func do(t *testing.T, api *API, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Error.Code
}

func TestRequestLinkEndpoint(t *testing.T) {
	expires := time.Now().Add(24 * time.Hour).UTC()
	fa := &fakeAuth{
		requestLink: func(_ context.Context, email string) (auth.IssuedLink, error) {
			if email != "ada@example.com" {
				return auth.IssuedLink{}, auth.ErrPrincipalNotFound
			}
			return auth.IssuedLink{Secret: "plain-secret", ExpiresAt: expires}, nil
		},
	}
	api := testAPI(fa, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/link", strings.NewReader(`{"email":"ada@example.com"}`))
	rec := do(t, api, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["token"] != "plain-secret" {
		t.Fatalf("body = %v", body)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/auth/link", strings.NewReader(`{"email":"nobody@example.com"}`))
	rec = do(t, api, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown email status = %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "principal_not_found" {
		t.Fatalf("error code = %q", code)
	}
}

func TestRequestLinkRejectsUnknownFields(t *testing.T) {
	api := testAPI(&fakeAuth{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/link", strings.NewReader(`{"email":"a@b.c","extra":1}`))
	rec := do(t, api, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRedeemSetsRefreshCookie(t *testing.T) {
	refreshExpires := time.Now().Add(30 * 24 * time.Hour).UTC()
	fa := &fakeAuth{
		redeem: func(_ context.Context, secret string) (auth.RedeemResult, error) {
			if secret == "used" {
				return auth.RedeemResult{}, auth.ErrTokenAlreadyUsed
			}
			return auth.RedeemResult{
				Principal:        auth.Principal{ID: "p1", TenantID: "t1", Email: "ada@example.com", Role: auth.RoleMember},
				AccessToken:      "access-jwt",
				AccessExpiresAt:  time.Now().Add(15 * time.Minute),
				RefreshSecret:    "refresh-secret",
				RefreshExpiresAt: refreshExpires,
			}, nil
		},
	}
	api := testAPI(fa, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/redeem", strings.NewReader(`{"token":"good"}`))
	rec := do(t, api, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	cookies := rec.Result().Cookies()
	var found *http.Cookie
	for _, c := range cookies {
		if c.Name == refreshCookieName {
			found = c
		}
	}
	if found == nil {
		t.Fatalf("refresh cookie not set; cookies = %v", cookies)
	}
	if found.Value != "refresh-secret" {
		t.Fatalf("cookie value = %q", found.Value)
	}
	if !found.HttpOnly || !found.Secure || found.SameSite != http.SameSiteLaxMode {
		t.Fatalf("cookie flags = %+v", found)
	}
	if found.Path != "/v1/auth" {
		t.Fatalf("cookie path = %q", found.Path)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["access_token"] != "access-jwt" {
		t.Fatalf("body = %v", body)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/auth/redeem", strings.NewReader(`{"token":"used"}`))
	rec = do(t, api, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("used token status = %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "token_used" {
		t.Fatalf("error code = %q", code)
	}
}

func TestSessionEndpoint(t *testing.T) {
	fa := &fakeAuth{
		validate: func(_ context.Context, secret string) (auth.PrincipalContext, error) {
			if secret != "refresh-secret" {
				return auth.PrincipalContext{}, auth.ErrInvalidSession
			}
			return auth.PrincipalContext{PrincipalID: "p1", Role: auth.RoleMember, TenantID: "t1"}, nil
		},
	}
	api := testAPI(fa, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/session", nil)
	rec := do(t, api, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no cookie status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: "refresh-secret"})
	rec = do(t, api, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var pc auth.PrincipalContext
	if err := json.Unmarshal(rec.Body.Bytes(), &pc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pc.PrincipalID != "p1" {
		t.Fatalf("context = %+v", pc)
	}
	if strings.Contains(rec.Body.String(), "email") {
		t.Fatal("session response must not include email")
	}
}

func TestRefreshEndpoint(t *testing.T) {
	fa := &fakeAuth{
		refresh: func(_ context.Context, secret string) (string, time.Time, error) {
			if secret != "refresh-secret" {
				return "", time.Time{}, auth.ErrSessionExpired
			}
			return "new-access-jwt", time.Now().Add(15 * time.Minute), nil
		},
	}
	api := testAPI(fa, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: "refresh-secret"})
	rec := do(t, api, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: "stale"})
	rec = do(t, api, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expired status = %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "session_expired" {
		t.Fatalf("error code = %q", code)
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	revoked := ""
	fa := &fakeAuth{
		revoke: func(_ context.Context, secret string) error {
			revoked = secret
			return nil
		},
	}
	api := testAPI(fa, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: "refresh-secret"})
	rec := do(t, api, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if revoked != "refresh-secret" {
		t.Fatalf("revoked = %q", revoked)
	}

	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == refreshCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatal("refresh cookie not cleared")
	}
}

func TestBearerMiddleware(t *testing.T) {
	fa := &fakeAuth{
		verify: func(token string) (auth.PrincipalContext, error) {
			if token == "good" {
				return auth.PrincipalContext{PrincipalID: "adm", Role: auth.RoleTenantAdmin, TenantID: "t1"}, nil
			}
			return auth.PrincipalContext{}, auth.ErrCredentialInvalid
		},
	}
	fd := &fakeDirectory{
		listPrincipals: func(_ context.Context, subject auth.PrincipalContext) ([]auth.Principal, error) {
			if subject.PrincipalID != "adm" {
				return nil, auth.ErrForbidden
			}
			return []auth.Principal{{ID: "p1", TenantID: "t1"}}, nil
		},
	}
	api := testAPI(fa, fd)

	req := httptest.NewRequest(http.MethodGet, "/v1/principals", nil)
	rec := do(t, api, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no credential status = %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "credential_missing" {
		t.Fatalf("error code = %q", code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/principals", nil)
	req.Header.Set("Authorization", "Bearer bad")
	rec = do(t, api, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad credential status = %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "credential_invalid" {
		t.Fatalf("error code = %q", code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/principals", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec = do(t, api, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestLogoutAllAdminOnly(t *testing.T) {
	var revoked []string
	fa := &fakeAuth{
		verify: func(token string) (auth.PrincipalContext, error) {
			switch token {
			case "member":
				return auth.PrincipalContext{PrincipalID: "mem", Role: auth.RoleMember, TenantID: "t1"}, nil
			case "manager":
				team := "team-a"
				return auth.PrincipalContext{PrincipalID: "mgr", Role: auth.RoleManager, TenantID: "t1", TeamID: &team}, nil
			case "admin":
				return auth.PrincipalContext{PrincipalID: "adm", Role: auth.RoleTenantAdmin, TenantID: "t1"}, nil
			}
			return auth.PrincipalContext{}, auth.ErrCredentialInvalid
		},
		revokeAll: func(_ context.Context, principalID string) error {
			revoked = append(revoked, principalID)
			return nil
		},
	}
	fd := &fakeDirectory{
		getPrincipal: func(_ context.Context, _ auth.PrincipalContext, id string) (auth.Principal, error) {
			return auth.Principal{ID: id, TenantID: "t1"}, nil
		},
	}
	api := testAPI(fa, fd)

	// Force-logout is administrative: non-admins are refused even for
	// their own record.
	for _, bearer := range []string{"member", "manager"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout_all", strings.NewReader(`{}`))
		req.Header.Set("Authorization", "Bearer "+bearer)
		rec := do(t, api, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s self force-logout: status = %d, want 403", bearer, rec.Code)
		}
	}
	if len(revoked) != 0 {
		t.Fatalf("non-admin calls reached RevokeAll: %v", revoked)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout_all", strings.NewReader(`{"principal_id":"other"}`))
	req.Header.Set("Authorization", "Bearer admin")
	rec := do(t, api, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("admin targeting other: status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(revoked) != 1 || revoked[0] != "other" {
		t.Fatalf("revoked = %v, want [other]", revoked)
	}
	// Another principal's sessions died, but the admin's own cookie
	// channel must survive.
	for _, c := range rec.Result().Cookies() {
		if c.Name == refreshCookieName {
			t.Fatalf("admin cookie touched when targeting another principal: %+v", c)
		}
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/auth/logout_all", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer admin")
	rec = do(t, api, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("admin self: status = %d, body %s", rec.Code, rec.Body.String())
	}
	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == refreshCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatal("admin self force-logout must clear the refresh cookie")
	}
}

func TestRedeemThreadsCallerIdentity(t *testing.T) {
	var gotClient string
	fa := &fakeAuth{
		redeem: func(ctx context.Context, secret string) (auth.RedeemResult, error) {
			gotClient = auth.ClientFromContext(ctx)
			return auth.RedeemResult{}, auth.ErrInvalidToken
		},
	}
	api := testAPI(fa, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/redeem", strings.NewReader(`{"token":"x"}`))
	do(t, api, req)
	if gotClient != "192.0.2.1" {
		t.Fatalf("client identity = %q, want 192.0.2.1", gotClient)
	}
}

func TestHealthEndpoint(t *testing.T) {
	api := testAPI(&fakeAuth{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := do(t, api, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("missing request id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing security headers")
	}
}
