package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"parley/cmd/internal/chatlog"
	"parley/cmd/internal/metrics"
)

// SessionState is the lifecycle phase of a DeliverySession.
type SessionState string

const (
	StateConnecting SessionState = "connecting"
	StateCatchingUp SessionState = "catching_up"
	StateLive       SessionState = "live"
	StateDegraded   SessionState = "degraded"
	StateClosed     SessionState = "closed"
)

// Sink receives the ordered message stream of one delivery session.
// The websocket gateway implements it; tests use in-memory sinks.
type Sink interface {
	SendMessage(ctx context.Context, msg chatlog.Message) error
}

// DeliverySession drives ordered, duplicate-free delivery for one subscriber.
//
// Lifecycle: connecting -> catching_up -> live, with live <-> degraded
// episodes when the subscriber queue overflows, and closed as the terminal
// state. The cursor (last delivered id) is the single dedup authority: a
// message is sent to the sink only when its id exceeds the cursor.
type DeliverySession struct {
	log   *slog.Logger
	store chatlog.Store
	hub   *Hub
	sub   *Subscriber

	batchSize  int
	cursor     int64
	lastResync time.Time

	mu    sync.Mutex
	state SessionState
}

// NewDeliverySession prepares a session resuming after lastSeenID.
// A negative lastSeenID means "no history": the session seeds its cursor
// from the tail of the log and only streams from there.
func NewDeliverySession(log *slog.Logger, store chatlog.Store, hub *Hub, sub *Subscriber, lastSeenID int64) *DeliverySession {
	return &DeliverySession{
		log:       log,
		store:     store,
		hub:       hub,
		sub:       sub,
		batchSize: catchUpBatchSize,
		cursor:    lastSeenID,
		state:     StateConnecting,
	}
}

// State reports the current lifecycle phase.
func (d *DeliverySession) State() SessionState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *DeliverySession) setState(s SessionState) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// Run executes the session until ctx ends, the subscriber shuts down, or the
// sink fails. It always detaches the subscriber from the hub on return.
func (d *DeliverySession) Run(ctx context.Context, sink Sink) error {
	defer func() {
		d.hub.Unsubscribe(d.sub.ID)
		d.setState(StateClosed)
	}()

	if d.cursor < 0 {
		if err := d.seedFromTail(ctx, sink); err != nil {
			return err
		}
	}

	if err := d.catchUp(ctx, sink); err != nil {
		return err
	}

	d.setState(StateLive)
	d.log.Info("delivery.live", "subscriber_id", d.sub.ID, "cursor", d.cursor)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-d.sub.Done():
			return nil

		case <-d.sub.StaleSignal():
			d.setState(StateDegraded)
			metrics.Resyncs.Inc()
			d.log.Info("delivery.resync", "subscriber_id", d.sub.ID, "cursor", d.cursor)

			// Pace back-to-back resyncs; the queue stays marked stale while
			// we wait, so nothing is enqueued in the meantime.
			if !d.lastResync.IsZero() && time.Since(d.lastResync) < resyncPaceWindow {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-d.sub.Done():
					return nil
				case <-time.After(resyncPace):
				}
			}
			d.lastResync = time.Now()

			// Re-arm the stale signal before reading the log. Anything
			// published after this point lands in the queue and is
			// filtered by the cursor; anything before it is in the log.
			d.sub.ClearStale()

			if err := d.catchUp(ctx, sink); err != nil {
				return err
			}
			d.setState(StateLive)

		case msg := <-d.sub.C:
			if msg.ID <= d.cursor {
				continue
			}
			if err := sink.SendMessage(ctx, msg); err != nil {
				return fmt.Errorf("delivery: sink: %w", err)
			}
			d.cursor = msg.ID
		}
	}
}

// seedFromTail replays the most recent tail of the log for a session with no
// resume cursor and positions the cursor at the newest delivered id.
func (d *DeliverySession) seedFromTail(ctx context.Context, sink Sink) error {
	d.setState(StateCatchingUp)

	msgs, err := d.store.Latest(ctx, d.batchSize)
	if err != nil {
		return fmt.Errorf("delivery: seed: %w", err)
	}

	d.cursor = 0
	for _, m := range msgs {
		if err := sink.SendMessage(ctx, m); err != nil {
			return fmt.Errorf("delivery: sink: %w", err)
		}
		d.cursor = m.ID
	}
	return nil
}

// catchUp ranges the log from the cursor in batches until a short batch
// signals the tail has been reached.
func (d *DeliverySession) catchUp(ctx context.Context, sink Sink) error {
	d.setState(StateCatchingUp)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msgs, err := d.store.Range(ctx, d.cursor, d.batchSize)
		if err != nil {
			return fmt.Errorf("delivery: catch-up: %w", err)
		}

		for _, m := range msgs {
			if m.ID <= d.cursor {
				continue
			}
			if err := sink.SendMessage(ctx, m); err != nil {
				return fmt.Errorf("delivery: sink: %w", err)
			}
			d.cursor = m.ID
		}

		if len(msgs) < d.batchSize {
			return nil
		}
	}
}
