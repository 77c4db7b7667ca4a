package chatlog

import (
	"context"
	"fmt"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)

	s, err := NewBadgerStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadgerStore_AppendAndRange(t *testing.T) {
	ctx := context.Background()
	s := newTestBadgerStore(t)

	for i := 1; i <= 6; i++ {
		msg, err := s.Append(ctx, "alice", fmt.Sprintf("m%d", i))
		require.NoError(t, err)
		assert.Equal(t, int64(i), msg.ID)
	}

	got, err := s.Range(ctx, 2, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(3), got[0].ID)
	assert.Equal(t, int64(5), got[2].ID)
	assert.Equal(t, "m3", got[0].Text)

	got, err = s.Range(ctx, 6, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBadgerStore_Latest(t *testing.T) {
	ctx := context.Background()
	s := newTestBadgerStore(t)

	got, err := s.Latest(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	for i := 1; i <= 5; i++ {
		_, err := s.Append(ctx, "bob", "x")
		require.NoError(t, err)
	}

	got, err = s.Latest(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(4), got[0].ID, "ascending order")
	assert.Equal(t, int64(5), got[1].ID)
}

func TestBadgerStore_RecoversIDCursor(t *testing.T) {
	ctx := context.Background()

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewBadgerStore(db)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := s.Append(ctx, "alice", "x")
		require.NoError(t, err)
	}

	// A fresh store over the same db must continue the sequence, not restart it.
	s2, err := NewBadgerStore(db)
	require.NoError(t, err)
	msg, err := s2.Append(ctx, "alice", "again")
	require.NoError(t, err)
	assert.Equal(t, int64(4), msg.ID)
}
