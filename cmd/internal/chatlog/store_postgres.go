package chatlog

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// logLockKey serializes appends across processes. A single advisory lock is
// enough because the log is one global append-only sequence.
const logLockKey = int64(0x70_61_72_6C_65_79) // "parley"

// PostgresStore is a Store backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
//
// Concurrency model:
// - Appends take a transactional advisory lock and allocate the next id from
//   a cursor row, so concurrent appends never produce duplicate or
//   out-of-order ids.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "parley").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("chatlog: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("chatlog: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
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
		return nil, errors.New("chatlog: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// Append allocates the next id under an advisory lock and inserts the message.
func (s *PostgresStore) Append(ctx context.Context, username, text string) (Message, error) {
	if s == nil || s.pool == nil {
		return Message{}, errors.New("chatlog: nil store")
	}
	if username == "" {
		return Message{}, OpError{Op: "chatlog.Append", Kind: ErrInvalidMessage, Msg: "missing username"}
	}
	text, err := ValidateText(text)
	if err != nil {
		return Message{}, err
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	now := time.Now().UTC()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return Message{}, transientErr("chatlog.Append", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cursors := pgIdent(s.schema, "log_cursor")
	messages := pgIdent(s.schema, "messages")

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, logLockKey); err != nil {
		return Message{}, transientErr("chatlog.Append", err)
	}

	// Cursor row ensures monotonic id allocation.
	if _, err := tx.Exec(ctx,
		`INSERT INTO `+cursors+` (id, next_id) VALUES (1, 1)
		 ON CONFLICT (id) DO NOTHING`,
	); err != nil {
		return Message{}, transientErr("chatlog.Append", err)
	}

	var id int64
	if err := tx.QueryRow(ctx,
		`UPDATE `+cursors+`
		    SET next_id = next_id + 1,
		        updated_at = now()
		  WHERE id = 1
		RETURNING (next_id - 1)`,
	).Scan(&id); err != nil {
		return Message{}, transientErr("chatlog.Append", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO `+messages+` (id, username, text, created_at)
		 VALUES ($1, $2, $3, $4)`,
		id, username, text, now,
	); err != nil {
		return Message{}, transientErr("chatlog.Append", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Message{}, transientErr("chatlog.Append", err)
	}

	return Message{ID: id, Username: username, Text: text, CreatedAt: now}, nil
}

// Range returns messages with id > sinceID, ascending, at most limit.
func (s *PostgresStore) Range(ctx context.Context, sinceID int64, limit int) ([]Message, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("chatlog: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	messages := pgIdent(s.schema, "messages")

	rows, err := s.pool.Query(ctx,
		`SELECT id, username, text, created_at
		   FROM `+messages+`
		  WHERE id > $1
		  ORDER BY id ASC
		  LIMIT $2`,
		sinceID, limit,
	)
	if err != nil {
		return nil, transientErr("chatlog.Range", err)
	}
	defer rows.Close()

	return scanMessages(rows, limit)
}

// Latest returns the most recent limit messages in ascending order.
func (s *PostgresStore) Latest(ctx context.Context, limit int) ([]Message, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("chatlog: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	messages := pgIdent(s.schema, "messages")

	rows, err := s.pool.Query(ctx,
		`SELECT id, username, text, created_at
		   FROM `+messages+`
		  WHERE id > (SELECT COALESCE(MAX(id), 0) - $1 FROM `+messages+`)
		  ORDER BY id ASC`,
		int64(limit),
	)
	if err != nil {
		return nil, transientErr("chatlog.Latest", err)
	}
	defer rows.Close()

	return scanMessages(rows, limit)
}

func scanMessages(rows pgx.Rows, capHint int) ([]Message, error) {
	msgs := make([]Message, 0, capHint)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Username, &m.Text, &m.CreatedAt); err != nil {
			return nil, transientErr("chatlog.scan", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, transientErr("chatlog.scan", err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return msgs, nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
