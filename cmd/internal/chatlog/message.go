// Package chatlog implements the append-only message log: strictly
// increasing integer ids assigned at append time, cursor-based range reads,
// and a tail read for clients without a cursor.
package chatlog

import (
	"strings"
	"time"
	"unicode"
)

// MaxTextChars is the maximum message length in runes after sanitization.
const MaxTextChars = 500

// Message is one immutable log entry. ID is assigned by the store at append
// time and is the single source of ordering truth.
type Message struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// SanitizeText strips control characters (newline excepted) and trims
// surrounding whitespace. The result is what gets persisted and length-checked.
func SanitizeText(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// ValidateText sanitizes and bounds-checks message text.
// Returns the sanitized text, or an ErrInvalidMessage kind on violation.
func ValidateText(s string) (string, error) {
	text := SanitizeText(s)
	if text == "" {
		return "", OpError{Op: "chatlog.ValidateText", Kind: ErrInvalidMessage, Msg: "empty text"}
	}
	if len([]rune(text)) > MaxTextChars {
		return "", OpError{Op: "chatlog.ValidateText", Kind: ErrInvalidMessage, Msg: "text too long"}
	}
	return text, nil
}
