package identity

import "context"

// Store persists user accounts. Usernames are unique in canonical form.
type Store interface {
	// Create inserts a new user. Returns an ErrConflict kind when the
	// canonical username is already taken.
	Create(ctx context.Context, user User) error

	// GetByUsername looks up a user by canonical username. Returns an
	// ErrNotFound kind when absent.
	GetByUsername(ctx context.Context, username string) (User, error)

	Close() error
}
