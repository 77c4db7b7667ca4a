package realtime

import (
	"log/slog"
	"sync"

	"parley/cmd/internal/chatlog"
	"parley/cmd/internal/metrics"
)

// Hub fans appended messages out to subscriber queues.
//
// Concurrency guarantees:
// - Subscribe/Unsubscribe are safe under concurrent Publish.
// - Publish never blocks: a full queue drops the message and marks the
//   subscriber stale instead.
// - Publish is panic-safe because Subscriber.C is never closed by the server.
type Hub struct {
	log *slog.Logger

	queueSize int

	mu   sync.RWMutex
	subs map[string]*Subscriber
}

// NewHub constructs a Hub. queueSize bounds each subscriber channel.
func NewHub(log *slog.Logger, queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Hub{
		log:       log,
		queueSize: queueSize,
		subs:      make(map[string]*Subscriber),
	}
}

// Subscribe attaches a new subscriber for username and returns its handle.
func (h *Hub) Subscribe(username string) *Subscriber {
	sub := NewSubscriber(username, h.queueSize)

	h.mu.Lock()
	h.subs[sub.ID] = sub
	h.mu.Unlock()

	metrics.Subscribers.Inc()
	h.log.Info("hub.subscribe", "subscriber_id", sub.ID, "username", username)
	return sub
}

// Unsubscribe detaches a subscriber and signals its shutdown (idempotent).
func (h *Hub) Unsubscribe(id string) {
	if id == "" {
		return
	}

	h.mu.Lock()
	sub, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()

	// Signal shutdown after removing from the map so no publisher still
	// holds the pointer while the owning goroutines tear down.
	if ok {
		sub.Close()
		metrics.Subscribers.Dec()
		h.log.Info("hub.unsubscribe", "subscriber_id", id)
	}
}

// Publish fans msg out to every attached subscriber.
// Non-blocking: stale or shutting-down subscribers are skipped, and a full
// queue drops the message and marks its subscriber stale.
func (h *Hub) Publish(msg chatlog.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if sub == nil {
			continue
		}

		select {
		case <-sub.Done():
			continue
		default:
		}

		// A stale subscriber is resyncing from the log; anything enqueued
		// now would only be filtered by its cursor anyway.
		if sub.Stale() {
			continue
		}

		select {
		case sub.C <- msg:
			metrics.FanoutDelivered.Inc()
		default:
			metrics.FanoutDropped.Inc()
			if sub.MarkStale() {
				metrics.StaleMarks.Inc()
				h.log.Info("hub.publish.drop",
					"subscriber_id", sub.ID,
					"username", sub.Username,
					"message_id", msg.ID,
				)
			}
		}
	}
}

// Count reports the number of attached subscribers (presence).
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
