package realtime

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/cmd/internal/chatlog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func msg(id int64, text string) chatlog.Message {
	return chatlog.Message{ID: id, Username: "alice", Text: text, CreatedAt: time.Now().UTC()}
}

func TestHub_PublishFanout(t *testing.T) {
	t.Parallel()

	h := NewHub(testLogger(), 8)
	a := h.Subscribe("alice")
	b := h.Subscribe("bob")
	defer h.Unsubscribe(a.ID)
	defer h.Unsubscribe(b.ID)

	require.Equal(t, 2, h.Count())

	h.Publish(msg(1, "hello"))

	for _, sub := range []*Subscriber{a, b} {
		select {
		case got := <-sub.C:
			assert.Equal(t, int64(1), got.ID)
		default:
			t.Fatalf("subscriber %s did not receive the message", sub.ID)
		}
	}
}

func TestHub_SlowSubscriberIsIsolated(t *testing.T) {
	t.Parallel()

	h := NewHub(testLogger(), 2)
	slow := h.Subscribe("slow")
	fast := h.Subscribe("fast")
	defer h.Unsubscribe(slow.ID)
	defer h.Unsubscribe(fast.ID)

	// Saturate both queues, then drain only the fast one.
	h.Publish(msg(1, "a"))
	h.Publish(msg(2, "b"))
	<-fast.C
	<-fast.C

	// The third publish overflows the slow queue. It must not block, the
	// slow subscriber goes stale, and the fast one still gets the message.
	done := make(chan struct{})
	go func() {
		h.Publish(msg(3, "c"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a saturated subscriber")
	}

	assert.True(t, slow.Stale())
	assert.False(t, fast.Stale())

	select {
	case got := <-fast.C:
		assert.Equal(t, int64(3), got.ID)
	default:
		t.Fatal("fast subscriber missed a message because of a slow peer")
	}

	// Stale subscribers are skipped entirely until they resync.
	h.Publish(msg(4, "d"))
	assert.Len(t, slow.C, 2)
}

func TestHub_UnsubscribeIsIdempotent(t *testing.T) {
	t.Parallel()

	h := NewHub(testLogger(), 4)
	sub := h.Subscribe("alice")

	h.Unsubscribe(sub.ID)
	h.Unsubscribe(sub.ID)
	h.Unsubscribe("")
	assert.Equal(t, 0, h.Count())

	select {
	case <-sub.Done():
	default:
		t.Fatal("unsubscribe should signal subscriber shutdown")
	}

	// Publishing after unsubscribe must not panic or enqueue.
	h.Publish(msg(1, "late"))
	assert.Len(t, sub.C, 0)
}

func TestSubscriber_StaleSignalRearms(t *testing.T) {
	t.Parallel()

	sub := NewSubscriber("alice", 4)
	defer sub.Close()

	first := sub.StaleSignal()
	require.True(t, sub.MarkStale())
	require.False(t, sub.MarkStale(), "second mark must not re-fire")

	select {
	case <-first:
	default:
		t.Fatal("stale signal did not fire")
	}

	sub.ClearStale()
	assert.False(t, sub.Stale())

	second := sub.StaleSignal()
	select {
	case <-second:
		t.Fatal("re-armed signal fired early")
	default:
	}

	require.True(t, sub.MarkStale())
	select {
	case <-second:
	default:
		t.Fatal("re-armed signal did not fire on second episode")
	}
}
