// Package realtime implements live message delivery: the broadcast hub that
// fans appended messages out to bounded subscriber queues, the per-connection
// delivery session that replays history before going live, and the WebSocket
// gateway that carries those sessions over the wire.
//
// Delivery contract: per subscriber, messages arrive in increasing id order
// with no duplicates. A slow subscriber never blocks the hub; its queue drops
// and the subscriber is marked stale, which forces its delivery session to
// re-read the log from its cursor.
package realtime
