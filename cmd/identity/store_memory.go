package identity

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store keyed by canonical username.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryStore constructs an empty in-memory user store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]User)}
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// Create inserts user, failing with an ErrConflict kind on a taken username.
func (s *MemoryStore) Create(ctx context.Context, user User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.Username]; ok {
		return OpError{Op: "identity.Create", Kind: ErrConflict, Msg: "username already taken"}
	}
	s.users[user.Username] = user
	return nil
}

// GetByUsername looks up a user by canonical username.
func (s *MemoryStore) GetByUsername(ctx context.Context, username string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[username]
	if !ok {
		return User{}, OpError{Op: "identity.GetByUsername", Kind: ErrNotFound, Msg: "unknown username"}
	}
	return user, nil
}

// Len reports the number of stored users (for tests).
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
