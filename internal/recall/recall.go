// Package recall talks to the long-term memory store that accumulates what is
// known about a customer across conversations.
package recall

import (
	"context"
	"time"
)

// Fact is one piece of knowledge about a customer, expressed as a triple so
// the store can maintain it as a graph.
type Fact struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// PastSession is a prior conversation's outcome as the store remembers it.
type PastSession struct {
	SessionID string    `json:"sessionId"`
	EndedAt   time.Time `json:"endedAt"`
	Summary   string    `json:"summary"`
}

// Context is everything the store knows about one participant.
type Context struct {
	ParticipantRef string        `json:"participantRef"`
	Facts          []Fact        `json:"facts"`
	PastSessions   []PastSession `json:"pastSessions"`
}

// Entry is one finished conversation submitted for long-term retention.
type Entry struct {
	ParticipantRef string    `json:"participantRef"`
	SessionID      string    `json:"sessionId"`
	EndedAt        time.Time `json:"endedAt"`
	Summary        string    `json:"summary"`
}

// Store is the capability surface the rest of the process depends on.
type Store interface {
	// Fetch returns what is known about the participant. An unknown
	// participant yields an empty Context, not an error.
	Fetch(ctx context.Context, participantRef string) (Context, error)

	// Record submits a finished conversation for retention.
	Record(ctx context.Context, entry Entry) error
}

// Null is the Store used when no memory collaborator is configured. It knows
// nothing and forgets everything.
type Null struct{}

func (Null) Fetch(ctx context.Context, participantRef string) (Context, error) {
	return Context{ParticipantRef: participantRef}, nil
}

func (Null) Record(ctx context.Context, entry Entry) error { return nil }
