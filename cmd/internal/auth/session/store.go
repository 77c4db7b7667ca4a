package session

import (
	"context"
	"time"
)

// Store abstracts persistence for session state.
//
// Requirements:
//   - Issue either fully succeeds or leaves the store unchanged.
//   - Validate fails with ErrUnauthenticated for unknown tokens and for
//     tokens at or past their expiry; expired records are evicted.
//   - Revoke is idempotent: revoking an unknown token is not an error.
type Store interface {
	// Issue generates a fresh token for username and records it.
	Issue(ctx context.Context, now time.Time, username string) (Session, error)

	// Validate resolves a presented token to its username.
	Validate(ctx context.Context, now time.Time, token string) (string, error)

	// Revoke removes the record for token.
	Revoke(ctx context.Context, token string) error

	// Sweep evicts all expired records and reports how many were removed.
	Sweep(ctx context.Context, now time.Time) (int, error)

	Close() error
}
