package audit

import (
	"time"
	"unicode/utf8"
)

// Truncation limits. Long values are cut rather than rejected so a noisy
// caller can never prevent its own event from being written.
const (
	MaxDescriptionLen  = 500
	MaxErrorMessageLen = 1000
	MaxUserAgentLen    = 255
)

// Event is one immutable audit record. Created exclusively by Service.Log;
// stores only ever append and read it.
type Event struct {
	ID        string
	ActorID   *int64
	ActorName string
	Action    Action

	Description string

	ClientIP  string
	UserAgent string
	SessionID string
	RequestID string

	ResourceType string
	ResourceID   string

	// OldValues, NewValues and Details hold the serialized structured
	// payloads. nil means the caller supplied nothing (or serialization
	// failed); it is stored as NULL, never as an empty object.
	OldValues []byte
	NewValues []byte
	Details   []byte

	Timestamp    time.Time
	Success      bool
	ErrorMessage string
	DurationMS   *int64
}

// Entry is the input to the single write primitive. Zero values mean
// "not provided"; Failed inverts the default-true success flag so the zero
// Entry records a successful event.
type Entry struct {
	Action      Action
	Description string

	ResourceType string
	ResourceID   string

	OldValues map[string]any
	NewValues map[string]any
	Details   map[string]any

	Failed       bool
	ErrorMessage string

	// DurationMS is recorded when non-nil. Negative values are clamped to 0.
	DurationMS *int64

	// ActorID and ClientIP override the context-derived values when set.
	ActorID   *int64
	ActorName string
	ClientIP  string
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Never cut inside a multibyte rune: a caller-controlled value (the
	// user agent, an error string) sliced mid-rune would be invalid UTF-8
	// and could make the store reject the whole event.
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
