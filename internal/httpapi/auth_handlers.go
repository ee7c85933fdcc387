package httpapi

import (
	"net/http"
	"time"

	"crewdock.org/internal/audit"
	"crewdock.org/internal/auth"
	"crewdock.org/internal/obs"
)

// refreshCookie carries the opaque refresh secret. Scoped to the auth
// routes so it never rides along on other API calls.
const refreshCookieName = "crewdock_refresh"

func setRefreshCookie(w http.ResponseWriter, secret string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    secret,
		Path:     "/v1/auth",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/v1/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

func refreshSecretFrom(r *http.Request) (string, bool) {
	c, err := r.Cookie(refreshCookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func (a *API) handleRequestLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeAuthError(w, err)
		return
	}
	issued, err := a.authn.RequestLink(r.Context(), req.Email)
	if err != nil {
		obs.AuthOp("request_link", "error")
		writeAuthError(w, err)
		return
	}
	obs.AuthOp("request_link", "ok")
	audit.LogEvent(r.Context(), "magic_link_issued", map[string]any{"email": req.Email})

	// The secret is returned to the delivery collaborator, which mails
	// the link out of band. It is not echoed anywhere else.
	writeJSON(w, http.StatusCreated, map[string]any{
		"token":      issued.Secret,
		"expires_at": issued.ExpiresAt.Format(time.RFC3339),
	})
}

func (a *API) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeAuthError(w, err)
		return
	}
	res, err := a.authn.Redeem(r.Context(), req.Token)
	if err != nil {
		obs.AuthOp("redeem", "error")
		audit.LogEvent(r.Context(), "magic_link_redeem_failed", map[string]any{"error": err.Error()})
		writeAuthError(w, err)
		return
	}
	obs.AuthOp("redeem", "ok")
	audit.LogEvent(r.Context(), "magic_link_redeemed", map[string]any{
		"principal_id": res.Principal.ID,
		"tenant_id":    res.Principal.TenantID,
	})

	setRefreshCookie(w, res.RefreshSecret, res.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, map[string]any{
		"principal":         res.Principal,
		"access_token":      res.AccessToken,
		"access_expires_at": res.AccessExpiresAt.Format(time.RFC3339),
	})
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	secret, ok := refreshSecretFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_session", "no session cookie")
		return
	}
	pc, err := a.authn.Validate(r.Context(), secret)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pc)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	secret, ok := refreshSecretFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_session", "no session cookie")
		return
	}
	token, expiresAt, err := a.authn.Refresh(r.Context(), secret)
	if err != nil {
		obs.AuthOp("refresh", "error")
		writeAuthError(w, err)
		return
	}
	obs.AuthOp("refresh", "ok")
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":      token,
		"access_expires_at": expiresAt.Format(time.RFC3339),
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if secret, ok := refreshSecretFrom(r); ok {
		if err := a.authn.Revoke(r.Context(), secret); err != nil {
			writeAuthError(w, err)
			return
		}
		obs.AuthOp("revoke", "ok")
		audit.LogEvent(r.Context(), "session_revoked", nil)
	}
	clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleLogoutAll is the administrative force-logout: tenant admins
// only. The target defaults to the admin's own record; per-session
// logout for everyone else is handleLogout.
func (a *API) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	subject, _ := principalFrom(r)
	if subject.Role != auth.RoleTenantAdmin {
		writeAuthError(w, auth.ErrForbidden)
		return
	}
	var req struct {
		PrincipalID string `json:"principal_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeAuthError(w, err)
		return
	}
	target := req.PrincipalID
	if target == "" {
		target = subject.PrincipalID
	}
	if target != subject.PrincipalID {
		// Tenant scoping rides on the directory lookup.
		if _, err := a.dir.GetPrincipal(r.Context(), subject, target); err != nil {
			writeAuthError(w, err)
			return
		}
	}
	if err := a.authn.RevokeAll(r.Context(), target); err != nil {
		writeAuthError(w, err)
		return
	}
	obs.AuthOp("revoke_all", "ok")
	audit.LogEvent(r.Context(), "sessions_revoked_all", map[string]any{"principal_id": target})
	// Clearing the cookie only makes sense when the admin logged out
	// their own sessions; another principal's cookie lives on their
	// browser, not this one.
	if target == subject.PrincipalID {
		clearRefreshCookie(w)
	}
	w.WriteHeader(http.StatusNoContent)
}
