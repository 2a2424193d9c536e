package auth

import (
	"errors"
	"strings"
)

// Sentinel errors returned by stores and the authenticator.
var (
	ErrUserNotFound     = errors.New("user not found")
	ErrUserExists       = errors.New("username is already taken")
	ErrWrongCredential  = errors.New("wrong credential")
	ErrLockedUser       = errors.New("user is locked")
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidSessionID = errors.New("session id is not a valid UUID")
	ErrNotAuthorized    = errors.New("user is not authorized")
	ErrAdminQuorum      = errors.New("admin quorum would be violated")
	ErrValidation       = errors.New("validation failed")
)

// ValidationError lists every rule a value violated.
type ValidationError struct {
	Field      string
	Violations []string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + strings.Join(e.Violations, ", ")
}

// Unwrap lets callers match any validation failure with errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error { return ErrValidation }
