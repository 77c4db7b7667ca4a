package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/cmd/internal/chatlog"
)

// chanSink funnels delivered messages into a buffered channel for assertions.
type chanSink struct {
	ch  chan chatlog.Message
	err error
}

func newChanSink() *chanSink {
	return &chanSink{ch: make(chan chatlog.Message, 128)}
}

func (s *chanSink) SendMessage(_ context.Context, m chatlog.Message) error {
	if s.err != nil {
		return s.err
	}
	s.ch <- m
	return nil
}

func recvMsg(t *testing.T, ch <-chan chatlog.Message) chatlog.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a delivered message")
		return chatlog.Message{}
	}
}

func appendN(t *testing.T, store chatlog.Store, n int) []chatlog.Message {
	t.Helper()
	out := make([]chatlog.Message, 0, n)
	for i := 0; i < n; i++ {
		m, err := store.Append(context.Background(), "alice", "hello")
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func waitState(t *testing.T, sess *DeliverySession, want SessionState) {
	t.Helper()
	require.Eventually(t, func() bool { return sess.State() == want },
		2*time.Second, 5*time.Millisecond, "session never reached state %q", want)
}

func TestDeliverySession_CatchUpThenLive(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := chatlog.NewMemoryStore()
	appendN(t, store, 2)

	hub := NewHub(testLogger(), 8)
	sub := hub.Subscribe("bob")
	sess := NewDeliverySession(testLogger(), store, hub, sub, 0)
	sink := newChanSink()

	runDone := make(chan error, 1)
	go func() { runDone <- sess.Run(ctx, sink) }()

	// History first, in order.
	assert.Equal(t, int64(1), recvMsg(t, sink.ch).ID)
	assert.Equal(t, int64(2), recvMsg(t, sink.ch).ID)
	waitState(t, sess, StateLive)

	// A republished old message is filtered by the cursor.
	hub.Publish(chatlog.Message{ID: 1, Username: "alice", Text: "hello"})

	// A fresh append flows through live fanout exactly once.
	m3, err := store.Append(ctx, "alice", "three")
	require.NoError(t, err)
	hub.Publish(m3)

	got := recvMsg(t, sink.ch)
	assert.Equal(t, int64(3), got.ID)
	assert.Equal(t, "three", got.Text)

	select {
	case extra := <-sink.ch:
		t.Fatalf("unexpected duplicate delivery: id=%d", extra.ID)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	err = <-runDone
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, sess.State())
	assert.Equal(t, 0, hub.Count())
}

func TestDeliverySession_SeedsCursorFromTail(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := chatlog.NewMemoryStore()
	appendN(t, store, 3)

	hub := NewHub(testLogger(), 8)
	sub := hub.Subscribe("bob")
	sess := NewDeliverySession(testLogger(), store, hub, sub, -1)
	sink := newChanSink()

	go func() { _ = sess.Run(ctx, sink) }()

	// No resume cursor: the recent tail is replayed, then the session is live.
	assert.Equal(t, int64(1), recvMsg(t, sink.ch).ID)
	assert.Equal(t, int64(2), recvMsg(t, sink.ch).ID)
	assert.Equal(t, int64(3), recvMsg(t, sink.ch).ID)
	waitState(t, sess, StateLive)

	m4, err := store.Append(ctx, "alice", "four")
	require.NoError(t, err)
	hub.Publish(m4)
	assert.Equal(t, int64(4), recvMsg(t, sink.ch).ID)
}

func TestDeliverySession_ResyncAfterStale(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := chatlog.NewMemoryStore()
	appendN(t, store, 3)

	hub := NewHub(testLogger(), 8)
	sub := hub.Subscribe("bob")
	sess := NewDeliverySession(testLogger(), store, hub, sub, 0)
	sink := newChanSink()

	go func() { _ = sess.Run(ctx, sink) }()

	for want := int64(1); want <= 3; want++ {
		assert.Equal(t, want, recvMsg(t, sink.ch).ID)
	}
	waitState(t, sess, StateLive)

	// Simulate dropped fanout: the log advances while the subscriber is
	// marked stale instead of receiving the messages.
	appendN(t, store, 2)
	require.True(t, sub.MarkStale())

	// The resync replays the gap from the cursor, in order, without dupes.
	assert.Equal(t, int64(4), recvMsg(t, sink.ch).ID)
	assert.Equal(t, int64(5), recvMsg(t, sink.ch).ID)
	waitState(t, sess, StateLive)
	assert.False(t, sub.Stale())

	m6, err := store.Append(ctx, "alice", "six")
	require.NoError(t, err)
	hub.Publish(m6)
	assert.Equal(t, int64(6), recvMsg(t, sink.ch).ID)
}

func TestDeliverySession_SinkFailureClosesSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	store := chatlog.NewMemoryStore()
	appendN(t, store, 1)

	hub := NewHub(testLogger(), 8)
	sub := hub.Subscribe("bob")
	sess := NewDeliverySession(testLogger(), store, hub, sub, 0)

	sink := newChanSink()
	sink.err = errors.New("socket gone")

	err := sess.Run(ctx, sink)
	require.Error(t, err)
	assert.Equal(t, StateClosed, sess.State())
	assert.Equal(t, 0, hub.Count())
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(3, time.Second)
	now := time.Now()

	assert.True(t, rl.Allow(now))
	assert.True(t, rl.Allow(now.Add(100*time.Millisecond)))
	assert.True(t, rl.Allow(now.Add(200*time.Millisecond)))
	assert.False(t, rl.Allow(now.Add(300*time.Millisecond)))

	// Events age out of the window.
	assert.True(t, rl.Allow(now.Add(1100*time.Millisecond)))
}
