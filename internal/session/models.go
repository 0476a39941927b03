package session

import "time"

// Channel identifies which medium a session runs over.
type Channel string

const (
	ChannelVoice Channel = "voice"
	ChannelChat  Channel = "chat"
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
	ChannelWeb   Channel = "web"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelVoice, ChannelChat, ChannelSMS, ChannelEmail, ChannelWeb:
		return true
	default:
		return false
	}
}

// Status is the session lifecycle state.
//
// Transitions are monotonic: a session never re-enters initializing and a
// terminal session never leaves its terminal state.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusActive       Status = "active"
	StatusCompleting   Status = "completing"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Speaker identifies who produced an utterance.
type Speaker string

const (
	SpeakerAgent    Speaker = "agent"
	SpeakerCustomer Speaker = "customer"
	SpeakerSystem   Speaker = "system"
)

func (s Speaker) Valid() bool {
	switch s {
	case SpeakerAgent, SpeakerCustomer, SpeakerSystem:
		return true
	default:
		return false
	}
}

// Session represents one customer interaction end-to-end on one channel.
//
// ParticipantRef is an external identifier (phone number, customer id) and is
// opaque to this package; it is never parsed, only compared.
type Session struct {
	ID      string  `json:"id"`
	Channel Channel `json:"channel"`
	Status  Status  `json:"status"`

	ParticipantRef string `json:"participant_ref"`

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	// TranscriptSeq is the next utterance sequence number to be assigned.
	// Accepted utterances for this session are numbered 0..TranscriptSeq-1
	// with no gaps.
	TranscriptSeq int64 `json:"transcript_seq"`

	// EndReason records why the session ended; empty while non-terminal.
	EndReason string `json:"end_reason,omitempty"`

	// Metadata carries channel-specific context (e.g., provider call id).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// DurationSeconds is the elapsed time of the session at now, or its final
// duration once ended.
func (s Session) DurationSeconds(now time.Time) int {
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	d := end.Sub(s.StartedAt)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}

// Utterance is one turn of dialogue within a session.
type Utterance struct {
	SessionID string    `json:"session_id"`
	Seq       int64     `json:"seq"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	EmittedAt time.Time `json:"emitted_at"`
}

// Event is a state-machine input applied via Registry.Transition.
type Event string

const (
	// EventAttached fires on the first successful transport attach.
	EventAttached Event = "attached"
	// EventEndRequested fires on an explicit end request.
	EventEndRequested Event = "end_requested"
	// EventDisconnected fires on channel-level termination (far-end hangup,
	// transport detach).
	EventDisconnected Event = "disconnected"
	// EventDrained fires once the transport has no more in-flight events.
	EventDrained Event = "drained"
	// EventFailed fires on an unrecoverable transport error.
	EventFailed Event = "failed"
	// EventAttachTimeout is raised only by the registry's own sweep when a
	// session sits in initializing past the attach deadline.
	EventAttachTimeout Event = "attach_timeout"
)
