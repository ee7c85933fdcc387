package auth

import "errors"

// Sentinel errors for the authentication core. Callers match with
// errors.Is; the HTTP layer maps them onto status codes.
var (
	ErrPrincipalNotFound = errors.New("auth: principal not found")
	ErrInvalidToken      = errors.New("auth: invalid token")
	ErrTokenExpired      = errors.New("auth: token expired")
	ErrTokenAlreadyUsed  = errors.New("auth: token already used")
	ErrInvalidSession    = errors.New("auth: invalid session")
	ErrSessionExpired    = errors.New("auth: session expired")
	ErrCredentialExpired = errors.New("auth: credential expired")
	ErrCredentialInvalid = errors.New("auth: credential invalid")

	ErrInvalidRoleAssignment = errors.New("auth: invalid role assignment")
	ErrForbidden             = errors.New("auth: forbidden")

	ErrInvalidInput = errors.New("auth: invalid input")
	ErrConflict     = errors.New("auth: conflict")
	ErrNotFound     = errors.New("auth: not found")
	ErrRateLimited  = errors.New("auth: rate limited")
)
