package identity

import (
	"strings"
	"time"
)

// Username bounds. The charset is deliberately narrow: lower-case ASCII
// letters, digits, and underscore after normalization.
const (
	UsernameMinLen = 2
	UsernameMaxLen = 24
)

// User is an immutable account record. Users are never deleted.
type User struct {
	ID           string // ULID
	Username     string // canonical (normalized) form
	PasswordHash string // PHC-encoded Argon2id
	CreatedAt    time.Time
}

// NormalizeUsername performs case-insensitive canonicalization.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateUsername normalizes and checks a username, returning the canonical
// form or an ErrInvalidInput kind.
func ValidateUsername(s string) (string, error) {
	u := NormalizeUsername(s)
	if len(u) < UsernameMinLen || len(u) > UsernameMaxLen {
		return "", OpError{Op: "identity.ValidateUsername", Kind: ErrInvalidInput, Msg: "username must be 2-24 characters"}
	}
	for _, r := range u {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return "", OpError{Op: "identity.ValidateUsername", Kind: ErrInvalidInput, Msg: "username may only contain a-z, 0-9 and _"}
		}
	}
	return u, nil
}
