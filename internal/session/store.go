// Package session holds thread-scoped conversational state: message
// history, slot map, and per-kind JSON blobs, each with a TTL that is
// refreshed on every access.
package session

import (
	"context"
	"errors"
	"time"
)

// DefaultMsgCap is the maximum number of messages retained per thread.
const DefaultMsgCap = 16

// Message is one entry of a thread's conversation history.
type Message struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	Name       string `json:"name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ErrTimeout reports that a backend operation exceeded its timeout. The
// turn driver treats this as recoverable and continues with empty state.
var ErrTimeout = errors.New("session: operation timed out")

// Store is the thread-scoped KV every backend implements.
//
// Contracts:
//   - operations are atomic per call; append+trim+TTL refresh is one unit
//   - GetMsgs returns oldest-first
//   - every read extends the TTL
type Store interface {
	// GetMsgs returns up to limit most recent messages, oldest-first.
	// limit <= 0 means all retained messages.
	GetMsgs(ctx context.Context, threadID string, limit int) ([]Message, error)

	// AppendMsg appends m, trimming the oldest entries beyond msgCap.
	// msgCap <= 0 means DefaultMsgCap.
	AppendMsg(ctx context.Context, threadID string, m Message, msgCap int) error

	// GetSlots returns the thread's slot map (never nil).
	GetSlots(ctx context.Context, threadID string) (map[string]string, error)

	// SetSlots writes put entries and deletes del keys in one unit.
	// Empty-string values in put are dropped, preserving the invariant
	// that no slot key ever holds an empty value.
	SetSlots(ctx context.Context, threadID string, put map[string]string, del []string) error

	// GetJSON unmarshals the kind-scoped blob into v. The boolean reports
	// whether a blob existed.
	GetJSON(ctx context.Context, kind, threadID string, v any) (bool, error)

	// SetJSON stores v as the kind-scoped blob.
	SetJSON(ctx context.Context, kind, threadID string, v any) error

	// Expire overrides the thread's TTL.
	Expire(ctx context.Context, threadID string, ttl time.Duration) error

	// Clear removes all state for the thread.
	Clear(ctx context.Context, threadID string) error

	// Close releases backend resources.
	Close() error
}
