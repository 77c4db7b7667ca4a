package realtime

import "time"

// Delivery limits.
const (
	// Bound on each subscriber queue.
	defaultQueueSize = 64

	// Messages fetched per catch-up batch.
	catchUpBatchSize = 50

	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 64 << 10 // 64 KiB

	// Back-to-back resyncs are paced so a persistently slow sink does not
	// turn the delivery session into a hot re-range loop.
	resyncPaceWindow = time.Second
	resyncPace       = 250 * time.Millisecond
)

const (
	// Heartbeat defaults (overridable via GatewayConfig).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection rate limits (events per window).
	rateLimitEvents = 120
	rateLimitWindow = 10 * time.Second
)
