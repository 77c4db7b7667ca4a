package chatlog

import "context"

const (
	// DefaultRangeLimit is applied when a caller passes limit <= 0.
	DefaultRangeLimit = 50
	// MaxRangeLimit is the hard cap on a single range/latest read.
	MaxRangeLimit = 200
)

// Store persists and queries the message log.
//
// Requirements:
//   - Append is the only id-generating operation; ids are strictly increasing
//     starting at 1, unique under concurrent appends.
//   - Range returns messages with id > sinceID, ascending, at most limit.
//   - Latest returns the most recent limit messages in ascending order.
type Store interface {
	Append(ctx context.Context, username, text string) (Message, error)
	Range(ctx context.Context, sinceID int64, limit int) ([]Message, error)
	Latest(ctx context.Context, limit int) ([]Message, error)
	Close() error
}

// clampLimit normalizes a caller-supplied limit to [1, MaxRangeLimit].
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultRangeLimit
	}
	if limit > MaxRangeLimit {
		return MaxRangeLimit
	}
	return limit
}
