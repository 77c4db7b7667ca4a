package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
//
// Only the SHA-256 hash of a token is ever persisted.
type PostgresStore struct {
	cfg    Config
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "parley").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" || !isValidPGIdent(schema) {
			return errors.New("session: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Store.
func NewPostgresStore(cfg Config, pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	st := &PostgresStore{
		cfg:    cfg,
		pool:   pool,
		schema: "parley",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("session: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// Issue generates a fresh token for username and records its hash.
func (s *PostgresStore) Issue(ctx context.Context, now time.Time, username string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	if username == "" {
		return Session{}, ErrConfig
	}

	plain, hash, err := newOpaqueToken(s.cfg.TokenBytes)
	if err != nil {
		return Session{}, err
	}

	sess := Session{
		Username:  username,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}

	sessions := pgIdent(s.schema, "sessions")
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO `+sessions+` (token_hash, username, issued_at, expires_at)
		 VALUES ($1, $2, $3, $4)`,
		hash, username, sess.IssuedAt, sess.ExpiresAt,
	); err != nil {
		return Session{}, err
	}

	sess.Token = plain
	return sess, nil
}

// Validate resolves a presented token to its username, evicting on expiry.
func (s *PostgresStore) Validate(ctx context.Context, now time.Time, token string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if token == "" {
		return "", ErrUnauthenticated
	}
	hash := HashTokenHex(token)

	sessions := pgIdent(s.schema, "sessions")

	var username string
	var expiresAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT username, expires_at FROM `+sessions+` WHERE token_hash = $1`,
		hash,
	).Scan(&username, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrUnauthenticated
	}
	if err != nil {
		return "", err
	}

	if !now.Before(expiresAt) {
		// Eager eviction; the sweep handles whatever this misses.
		_, _ = s.pool.Exec(ctx, `DELETE FROM `+sessions+` WHERE token_hash = $1`, hash)
		return "", ErrUnauthenticated
	}
	return username, nil
}

// Revoke removes the record for token (idempotent).
func (s *PostgresStore) Revoke(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if token == "" {
		return nil
	}
	sessions := pgIdent(s.schema, "sessions")
	_, err := s.pool.Exec(ctx, `DELETE FROM `+sessions+` WHERE token_hash = $1`, HashTokenHex(token))
	return err
}

// Sweep evicts all expired records.
func (s *PostgresStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	sessions := pgIdent(s.schema, "sessions")
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+sessions+` WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func isValidPGIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
