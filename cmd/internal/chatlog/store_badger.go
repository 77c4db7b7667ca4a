package chatlog

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Badger key layout: "msg:" + zero-padded id so that lexicographic iteration
// order equals numeric id order.
const (
	badgerKeyPrefix = "msg:"
	badgerKeyFormat = badgerKeyPrefix + "%020d"
)

// BadgerStore is a Store backed by an embedded Badger database, for
// single-node deployments that want durability without running Postgres.
//
// Id allocation is serialized by an in-process mutex; the last assigned id is
// recovered from the highest key at open time. This is safe because Badger is
// single-writer at the process level.
type BadgerStore struct {
	db *badger.DB

	mu     sync.Mutex
	nextID int64
}

// NewBadgerStore opens a Store over an already-opened Badger database.
// The database handle is owned by the store; Close closes it.
func NewBadgerStore(db *badger.DB) (*BadgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("chatlog: nil badger db")
	}

	s := &BadgerStore{db: db, nextID: 1}

	// Recover the id cursor from the highest existing key.
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the last possible message key, then step back into the prefix.
		it.Seek([]byte(badgerKeyPrefix + "99999999999999999999"))
		if !it.ValidForPrefix([]byte(badgerKeyPrefix)) {
			return nil
		}

		key := string(it.Item().Key())
		last, err := strconv.ParseInt(strings.TrimPrefix(key, badgerKeyPrefix), 10, 64)
		if err != nil {
			return fmt.Errorf("chatlog: malformed key %q: %w", key, err)
		}
		s.nextID = last + 1
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Close closes the underlying Badger database.
func (s *BadgerStore) Close() error { return s.db.Close() }

// Append assigns the next id and persists the message under an ordered key.
func (s *BadgerStore) Append(ctx context.Context, username, text string) (Message, error) {
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

	val, err := json.Marshal(msg)
	if err != nil {
		return Message{}, err
	}
	key := fmt.Sprintf(badgerKeyFormat, msg.ID)

	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	}); err != nil {
		return Message{}, transientErr("chatlog.Append", err)
	}

	s.nextID++
	return msg, nil
}

// Range returns messages with id > sinceID, ascending, at most limit.
func (s *BadgerStore) Range(ctx context.Context, sinceID int64, limit int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	var msgs []Message
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		seek := []byte(fmt.Sprintf(badgerKeyFormat, sinceID+1))
		for it.Seek(seek); it.ValidForPrefix([]byte(badgerKeyPrefix)); it.Next() {
			if len(msgs) >= limit {
				break
			}
			var m Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return err
			}
			msgs = append(msgs, m)
		}
		return nil
	})
	if err != nil {
		return nil, transientErr("chatlog.Range", err)
	}
	return msgs, nil
}

// Latest returns the most recent limit messages in ascending order.
func (s *BadgerStore) Latest(ctx context.Context, limit int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	var msgs []Message
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek([]byte(badgerKeyPrefix + "99999999999999999999"))
		for ; it.ValidForPrefix([]byte(badgerKeyPrefix)); it.Next() {
			if len(msgs) >= limit {
				break
			}
			var m Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return err
			}
			msgs = append(msgs, m)
		}
		return nil
	})
	if err != nil {
		return nil, transientErr("chatlog.Latest", err)
	}

	// Reverse into ascending id order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
