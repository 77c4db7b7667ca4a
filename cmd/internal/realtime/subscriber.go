package realtime

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"parley/cmd/internal/chatlog"
)

// Subscriber is one attachment to the Hub.
//
// Design notes:
// - C is intentionally NOT closed by the server to keep fanout panic-safe
//   under concurrent publishers.
// - done signals goroutines to stop. Close is idempotent.
// - The stale signal is re-armable: ClearStale installs a fresh channel so a
//   delivery session can resync and go stale again later.
type Subscriber struct {
	ID       string
	Username string
	C        chan chatlog.Message

	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	stale   bool
	staleCh chan struct{}
}

// NewSubscriber constructs a Subscriber with a bounded queue.
func NewSubscriber(username string, queueSize int) *Subscriber {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Subscriber{
		ID:       ulid.MustNew(ulid.Timestamp(time.Now().UTC()), rand.Reader).String(),
		Username: username,
		C:        make(chan chatlog.Message, queueSize),
		done:     make(chan struct{}),
		staleCh:  make(chan struct{}),
	}
}

// Done returns a channel closed when the subscriber is shutting down.
func (s *Subscriber) Done() <-chan struct{} {
	if s == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.done
}

// Close signals shutdown (idempotent). It does NOT close C to keep fanout
// safe under concurrency.
func (s *Subscriber) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// MarkStale flags the subscriber after a dropped delivery and fires the
// current stale signal. Reports whether this call transitioned the
// subscriber from fresh to stale.
func (s *Subscriber) MarkStale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stale {
		return false
	}
	s.stale = true
	close(s.staleCh)
	return true
}

// Stale reports whether the subscriber is currently flagged stale.
func (s *Subscriber) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

// StaleSignal returns a channel closed when the subscriber goes stale.
// After ClearStale a new channel is returned for the next episode.
func (s *Subscriber) StaleSignal() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staleCh
}

// ClearStale re-arms the stale signal. The delivery session calls this
// BEFORE re-reading the log so publishes that race the resync land in C
// and are deduplicated by the session's cursor.
func (s *Subscriber) ClearStale() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.stale {
		return
	}
	s.stale = false
	s.staleCh = make(chan struct{})
}
