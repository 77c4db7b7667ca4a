package api

import "time"

// Config tunes the HTTP API handlers.
type Config struct {
	// MaxBodyBytes bounds request body reads.
	MaxBodyBytes int64

	// Per-user posting limits (sliding window).
	PostRateEvents int
	PostRateWindow time.Duration

	// Retry policy for transient storage failures.
	RetryAttempts int
	RetryBackoff  time.Duration
}

// DefaultConfig returns the API defaults.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:   1 << 20, // 1 MiB
		PostRateEvents: 30,
		PostRateWindow: 10 * time.Second,
		RetryAttempts:  3,
		RetryBackoff:   25 * time.Millisecond,
	}
}
