// Package common defines shared constants and sentinel errors used across
// AuthKeeper components. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// Credential errors. Registration conflicts are reported per field so the
	// client can highlight the right one; login failures are deliberately
	// indistinguishable between unknown identifier and wrong password.
	ErrUsernameTaken      = errors.New("username already registered")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Token errors. The token signer reports the distinct kinds; the refresh
	// boundary collapses all of them to ErrInvalidToken.
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenMalformed   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")

	// Authorization errors.
	ErrUnauthorized = errors.New("unauthorized")
	ErrUserInactive = errors.New("inactive user")
	ErrForbidden    = errors.New("forbidden")

	// ErrSession marks an internal inconsistency during rotation. Fatal to the
	// current session: the caller must log in again.
	ErrSession = errors.New("session error")
)

// ValidationError reports a bad input value for a single field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}
