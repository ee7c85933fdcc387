package httpapi

import (
	"net/http"
	"strings"

	"crewdock.org/internal/auth"
)

// withAccess requires a valid bearer access credential and attaches the
// principal context before calling next.
func (a *API) withAccess(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "credential_missing", "bearer credential required")
			return
		}
		pc, err := a.authn.VerifyAccess(token)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		next(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), pc)))
	}
}

// withOptionalAccess attaches the principal context when a valid bearer
// credential is present and otherwise passes the request through
// unchanged. Verification failures are swallowed: the endpoint itself
// does not require authentication, the context only enriches audit
// events.
func (a *API) withOptionalAccess(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token, ok := bearerToken(r); ok {
			if pc, err := a.authn.VerifyAccess(token); err == nil {
				r = r.WithContext(auth.ContextWithPrincipal(r.Context(), pc))
			}
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

func principalFrom(r *http.Request) (auth.PrincipalContext, bool) {
	return auth.PrincipalFromContext(r.Context())
}
