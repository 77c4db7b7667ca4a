package api

import (
	"context"
	"math/rand/v2"
	"time"

	"parley/cmd/internal/chatlog"
)

// withRetry runs fn up to attempts times, retrying only transient storage
// failures with jittered exponential backoff.
func withRetry[T any](ctx context.Context, attempts int, backoff time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	if attempts < 1 {
		attempts = 1
	}
	if backoff <= 0 {
		backoff = 25 * time.Millisecond
	}

	var err error
	for i := 0; i < attempts; i++ {
		var out T
		out, err = fn()
		if err == nil {
			return out, nil
		}
		if !chatlog.IsTransient(err) {
			return zero, err
		}
		if i == attempts-1 {
			break
		}

		sleep := backoff << i
		sleep += rand.N(sleep)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(sleep):
		}
	}
	return zero, err
}
