package chatlog

import (
	"errors"
	"fmt"
)

// Sentinel error kinds (stable for errors.Is and for mapping to API status codes).
var (
	ErrInvalidMessage = errors.New("invalid_message")
	ErrNotFound       = errors.New("not_found")
	ErrTransient      = errors.New("transient")
)

// OpError is a typed operation error with a stable Op + Kind contract for callers/tests.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

// transientErr wraps a storage/network failure so callers can retry with
// backoff (errors.Is(err, ErrTransient)) without losing the cause.
func transientErr(op string, err error) error {
	return OpError{Op: op, Kind: ErrTransient, Msg: err.Error()}
}

// IsInvalidMessage reports whether err represents ErrInvalidMessage.
func IsInvalidMessage(err error) bool { return errors.Is(err, ErrInvalidMessage) }

// IsTransient reports whether err represents ErrTransient.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }
