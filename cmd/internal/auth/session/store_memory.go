package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MemoryStore is an in-process Store keyed by token hash.
type MemoryStore struct {
	cfg Config

	mu   sync.Mutex
	byID map[string]Session // token hash -> session (Token field empty)
}

// NewMemoryStore constructs an in-memory Store.
func NewMemoryStore(cfg Config) (*MemoryStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &MemoryStore{
		cfg:  cfg,
		byID: make(map[string]Session),
	}, nil
}

// Close closes the store (noop for in-memory).
func (s *MemoryStore) Close() error { return nil }

// Issue generates a fresh token for username and records it.
func (s *MemoryStore) Issue(ctx context.Context, now time.Time, username string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	if username == "" {
		return Session{}, ErrConfig
	}

	plain, hash, err := newOpaqueToken(s.cfg.TokenBytes)
	if err != nil {
		// Nothing recorded: issue is all-or-nothing.
		return Session{}, err
	}

	sess := Session{
		Username:  username,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}

	s.mu.Lock()
	s.byID[hash] = sess
	s.mu.Unlock()

	sess.Token = plain
	return sess, nil
}

// Validate resolves a presented token to its username, evicting on expiry.
func (s *MemoryStore) Validate(ctx context.Context, now time.Time, token string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if token == "" {
		return "", ErrUnauthenticated
	}
	hash := HashTokenHex(token)

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byID[hash]
	if !ok {
		return "", ErrUnauthenticated
	}
	// Expiry boundary is inclusive: a token is invalid at expiresAt.
	if !now.Before(sess.ExpiresAt) {
		delete(s.byID, hash)
		return "", ErrUnauthenticated
	}
	return sess.Username, nil
}

// Revoke removes the record for token (idempotent).
func (s *MemoryStore) Revoke(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if token == "" {
		return nil
	}
	hash := HashTokenHex(token)

	s.mu.Lock()
	delete(s.byID, hash)
	s.mu.Unlock()
	return nil
}

// Sweep evicts all expired records.
func (s *MemoryStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for hash, sess := range s.byID {
		if !now.Before(sess.ExpiresAt) {
			delete(s.byID, hash)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of live records (for tests and metrics).
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// RunSweeper periodically sweeps expired sessions until ctx is done.
// It is transport-agnostic and works with any Store implementation.
func RunSweeper(ctx context.Context, log *slog.Logger, store Store, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultConfig().SweepInterval
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := store.Sweep(ctx, time.Now().UTC())
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error("session.sweep.fail", "err", err)
				continue
			}
			if n > 0 {
				log.Info("session.sweep", "evicted", n)
			}
		}
	}
}
