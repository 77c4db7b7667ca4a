package session

import "errors"

var (
	// ErrUnauthenticated is returned when a token is unknown, revoked, or expired.
	// Callers surface it as a prompt to re-authenticate, never as a retry.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
