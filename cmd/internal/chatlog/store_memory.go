package chatlog

import (
	"context"
	"sort"
	"sync"
	"time"
)

const memDefaultRetention = 10_000

// MemoryStore is an in-process Store used for dev mode and tests.
//
// A single mutex serializes appends, which is what guarantees unique,
// strictly increasing ids. Retention trimming only ever removes the oldest
// entries; ids are never renumbered.
type MemoryStore struct {
	mu        sync.Mutex
	nextID    int64
	msgs      []Message // ordered by id ASC
	retention int
}

// MemoryOption configures MemoryStore behavior.
type MemoryOption func(*MemoryStore)

// WithRetention caps how many messages the store keeps (oldest trimmed first).
// Non-positive values keep the default.
func WithRetention(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.retention = n
		}
	}
}

// NewMemoryStore constructs an in-memory Store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		nextID:    1,
		msgs:      make([]Message, 0, 256),
		retention: memDefaultRetention,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Close closes the store (noop for in-memory).
func (s *MemoryStore) Close() error { return nil }

// Append assigns the next id, stamps CreatedAt and stores the message.
func (s *MemoryStore) Append(ctx context.Context, username, text string) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	if username == "" {
		return Message{}, OpError{Op: "chatlog.Append", Kind: ErrInvalidMessage, Msg: "missing username"}
	}
	text, err := ValidateText(text)
	if err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg := Message{
		ID:        s.nextID,
		Username:  username,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	s.nextID++
	s.msgs = append(s.msgs, msg)

	if len(s.msgs) > s.retention {
		s.msgs = s.msgs[len(s.msgs)-s.retention:]
	}

	return msg, nil
}

// Range returns messages with id > sinceID, ascending, at most limit.
func (s *MemoryStore) Range(ctx context.Context, sinceID int64, limit int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	s.mu.Lock()
	defer s.mu.Unlock()

	start := sort.Search(len(s.msgs), func(i int) bool { return s.msgs[i].ID > sinceID })
	if start >= len(s.msgs) {
		return nil, nil
	}

	end := start + limit
	if end > len(s.msgs) {
		end = len(s.msgs)
	}

	out := make([]Message, end-start)
	copy(out, s.msgs[start:end])
	return out, nil
}

// Latest returns the most recent limit messages in ascending order.
func (s *MemoryStore) Latest(ctx context.Context, limit int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	s.mu.Lock()
	defer s.mu.Unlock()

	start := len(s.msgs) - limit
	if start < 0 {
		start = 0
	}
	if start >= len(s.msgs) {
		return nil, nil
	}

	out := make([]Message, len(s.msgs)-start)
	copy(out, s.msgs[start:])
	return out, nil
}
