package core

import "fmt"

// ChatSource classifies who produced a ChatEvent's message.
type ChatSource string

// ChatSource values per spec.md 3.
const (
	ChatSourceSDK    ChatSource = "sdk"
	ChatSourceUser   ChatSource = "user"
	ChatSourceSystem ChatSource = "system"
)

// ChatEvent is one message in a session's conversation history.
type ChatEvent struct {
	SessionID string
	// Sequence is 1-based and unique within SessionID.
	Sequence int64
	// TimestampMs is the event's creation time in epoch milliseconds.
	TimestampMs int64
	Source      ChatSource
	// Message is the opaque structured payload (JSON-serializable).
	Message map[string]any
}

// PrimaryKey returns the deterministic primary key for this event:
// "sessionId:sequence" per spec.md 3.
func (e ChatEvent) PrimaryKey() string {
	return ChatEventKey(e.SessionID, e.Sequence)
}

// ChatEventKey builds a ChatEvent primary key without requiring an event.
func ChatEventKey(sessionID string, sequence int64) string {
	return fmt.Sprintf("%s:%d", sessionID, sequence)
}

// SessionMeta tracks session-level bookkeeping, mutated whenever any store
// records activity for the session.
type SessionMeta struct {
	SessionID     string
	CreatedAtMs   int64
	UpdatedAtMs   int64
	LastSequence  int64
}
