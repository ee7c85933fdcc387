package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"crewdock.org/internal/auth"
	"crewdock.org/internal/obs"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		obs.Error("response encode failed", map[string]any{"error": err.Error()})
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// decodeJSON parses a request body strictly: size-capped, unknown
// fields rejected, trailing data rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed request body", auth.ErrInvalidInput)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON body", auth.ErrInvalidInput)
	}
	if _, err := io.Copy(io.Discard, r.Body); err != nil {
		return fmt.Errorf("%w: body read failed", auth.ErrInvalidInput)
	}
	return nil
}

// writeAuthError maps the typed error taxonomy onto HTTP statuses. The
// token and session failure modes stay distinguishable in the error
// code so clients can react (re-request a link vs. re-login).
func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrPrincipalNotFound):
		writeError(w, http.StatusNotFound, "principal_not_found", "principal not found")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid_token", "magic link token is not valid")
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "token_expired", "magic link token has expired")
	case errors.Is(err, auth.ErrTokenAlreadyUsed):
		writeError(w, http.StatusUnauthorized, "token_used", "magic link token was already used")
	case errors.Is(err, auth.ErrInvalidSession):
		writeError(w, http.StatusUnauthorized, "invalid_session", "session is not valid")
	case errors.Is(err, auth.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, "session_expired", "session has expired")
	case errors.Is(err, auth.ErrCredentialExpired):
		writeError(w, http.StatusUnauthorized, "credential_expired", "access credential has expired")
	case errors.Is(err, auth.ErrCredentialInvalid):
		writeError(w, http.StatusUnauthorized, "credential_invalid", "access credential is not valid")
	case errors.Is(err, auth.ErrInvalidRoleAssignment):
		writeError(w, http.StatusBadRequest, "invalid_role_assignment", err.Error())
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "operation not permitted")
	case errors.Is(err, auth.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "resource already exists")
	case errors.Is(err, auth.ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
	default:
		obs.Error("internal error", map[string]any{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
