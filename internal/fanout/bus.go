package fanout

import (
	"context"
	"time"
)

// EventKind discriminates what a session event carries.
type EventKind string

const (
	// KindStatus marks a session status change; Status is set.
	KindStatus EventKind = "status"
	// KindUtterance marks an accepted utterance; Seq, Speaker and Text are set.
	KindUtterance EventKind = "utterance"
)

// Event is one ordered session event as produced by the registry.
//
// Ordering guarantee: events carrying the same SessionID are delivered to a
// given subscriber in publication order. There is no ordering guarantee
// across sessions.
type Event struct {
	SessionID string    `json:"session_id"`
	Kind      EventKind `json:"kind"`

	// Status is the new session status for KindStatus events.
	Status string `json:"status,omitempty"`

	// Seq/Speaker/Text describe the utterance for KindUtterance events.
	Seq     int64  `json:"seq,omitempty"`
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text,omitempty"`

	At time.Time `json:"at"`
}

// Publisher is the write side of the bus. Publish must never block on a
// subscriber's I/O; from the caller's perspective it is fire-and-forget.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Bus is a best-effort multicast of session events to live subscribers.
//
// Delivery contract:
//   - per-session publication order is preserved per subscriber
//   - subscribers joining after an event was published do not receive it
//   - a slow subscriber is evicted rather than allowed to block publication
type Bus interface {
	Publisher

	// Subscribe registers a subscriber and returns its receive channel plus a
	// cancel function. The channel is closed on cancel or eviction.
	Subscribe(ctx context.Context) (<-chan Event, func())
}
