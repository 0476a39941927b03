package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"voice-platform/internal/fanout"

	"github.com/google/uuid"
)

// Config controls registry behavior.
type Config struct {
	// AttachTimeout bounds how long a session may sit in initializing before
	// the sweep fails it.
	AttachTimeout time.Duration

	// SweepInterval is how often the background sweep runs.
	SweepInterval time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	if out.AttachTimeout <= 0 {
		out.AttachTimeout = 30 * time.Second
	}
	if out.SweepInterval <= 0 {
		out.SweepInterval = 5 * time.Second
	}
	return out
}

// End reasons understood by EndSession. ReasonError and ReasonTimeout drive
// the session to failed; everything else completes it.
const (
	ReasonRequested = "requested"
	ReasonHangup    = "hangup"
	ReasonError     = "error"
	ReasonTimeout   = "timeout"
)

// Registry is the single source of truth for session state.
//
// Concurrency model:
//   - r.mu guards the session and active-pair indexes only.
//   - each session entry carries its own mutex; all mutations of one session
//     (Transition, AppendUtterance, EndSession) serialize on it, while
//     different sessions proceed independently.
//   - lock order: a goroutine may take r.mu while holding an entry lock
//     (terminal cleanup), but never an entry lock while holding r.mu.
//   - events are published under the entry lock, so fan-out order matches
//     mutation order per session; Publish itself never blocks.
//
// Nothing outside this package mutates a session.
type Registry struct {
	cfg Config
	bus fanout.Publisher
	log *slog.Logger

	// clock is injectable for deterministic tests.
	clock func() time.Time

	mu       sync.RWMutex
	sessions map[string]*entry
	active   map[activeKey]string
}

type activeKey struct {
	channel Channel
	ref     string
}

type entry struct {
	mu         sync.Mutex
	s          Session
	transcript []Utterance
}

func NewRegistry(cfg Config, bus fanout.Publisher, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		cfg:      cfg.withDefaults(),
		bus:      bus,
		log:      log,
		clock:    time.Now,
		sessions: map[string]*entry{},
		active:   map[activeKey]string{},
	}
}

/* ===================== STATE MACHINE ===================== */

// transitions is the legal edge table. Absent edges are rejected with
// ErrInvalidTransition, except for terminal redelivery (see terminalTarget).
var transitions = map[Status]map[Event]Status{
	StatusInitializing: {
		EventAttached:      StatusActive,
		EventEndRequested:  StatusFailed,
		EventDisconnected:  StatusFailed,
		EventFailed:        StatusFailed,
		EventAttachTimeout: StatusFailed,
	},
	StatusActive: {
		EventEndRequested: StatusCompleting,
		EventDisconnected: StatusCompleting,
		EventFailed:       StatusFailed,
	},
	StatusCompleting: {
		EventDrained:      StatusCompleted,
		EventDisconnected: StatusCompleted,
		EventFailed:       StatusFailed,
	},
}

// terminalTarget maps each event to the terminal status it ultimately drives
// toward. Redelivering an event to a session already resting in that terminal
// status is a no-op, not an error.
var terminalTarget = map[Event]Status{
	EventEndRequested:  StatusCompleted,
	EventDisconnected:  StatusCompleted,
	EventDrained:       StatusCompleted,
	EventFailed:        StatusFailed,
	EventAttachTimeout: StatusFailed,
}

/* ===================== OPERATIONS ===================== */

// CreateSession allocates a new session in initializing.
// At most one non-terminal session may exist per (channel, participantRef);
// a second create for the same pair fails with ErrConflict.
func (r *Registry) CreateSession(ctx context.Context, channel Channel, participantRef string, metadata map[string]string) (Session, error) {
	if !channel.Valid() {
		return Session{}, fmt.Errorf("%w: unknown channel %q", ErrValidation, channel)
	}
	if participantRef == "" {
		return Session{}, fmt.Errorf("%w: participant_ref required", ErrValidation)
	}

	now := r.clock().UTC()
	s := Session{
		ID:             uuid.NewString(),
		Channel:        channel,
		Status:         StatusInitializing,
		ParticipantRef: participantRef,
		StartedAt:      now,
		Metadata:       copyMetadata(metadata),
	}

	key := activeKey{channel: channel, ref: participantRef}

	r.mu.Lock()
	if existing, ok := r.active[key]; ok {
		r.mu.Unlock()
		return Session{}, fmt.Errorf("%w: active session %s exists for participant", ErrConflict, existing)
	}
	r.sessions[s.ID] = &entry{s: s}
	r.active[key] = s.ID
	r.mu.Unlock()

	r.log.Info("session created", "session_id", s.ID, "channel", channel)
	return s, nil
}

// GetSession returns a snapshot of the session.
func (r *Registry) GetSession(ctx context.Context, id string) (Session, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(), nil
}

// FindActive returns the non-terminal session for the pair, if any.
func (r *Registry) FindActive(ctx context.Context, channel Channel, participantRef string) (Session, bool) {
	r.mu.RLock()
	id, ok := r.active[activeKey{channel: channel, ref: participantRef}]
	r.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	s, err := r.GetSession(ctx, id)
	if err != nil {
		return Session{}, false
	}
	return s, true
}

// Transcript returns a copy of the accepted utterances in seq order.
func (r *Registry) Transcript(ctx context.Context, id string) ([]Utterance, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Utterance, len(e.transcript))
	copy(out, e.transcript)
	return out, nil
}

// AppendUtterance assigns the next sequence number and records one turn of
// dialogue. Sequence assignment and the fan-out publish are atomic with
// respect to concurrent appenders on the same session.
func (r *Registry) AppendUtterance(ctx context.Context, id string, speaker Speaker, text string) (int64, error) {
	if !speaker.Valid() {
		return 0, fmt.Errorf("%w: unknown speaker %q", ErrValidation, speaker)
	}
	e, err := r.lookup(id)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.s.Status != StatusActive {
		return 0, fmt.Errorf("%w: cannot append in status %q", ErrInvalidState, e.s.Status)
	}

	u := Utterance{
		SessionID: id,
		Seq:       e.s.TranscriptSeq,
		Speaker:   speaker,
		Text:      text,
		EmittedAt: r.clock().UTC(),
	}
	e.s.TranscriptSeq++
	e.transcript = append(e.transcript, u)

	r.publish(ctx, fanout.Event{
		SessionID: id,
		Kind:      fanout.KindUtterance,
		Seq:       u.Seq,
		Speaker:   string(u.Speaker),
		Text:      u.Text,
		At:        u.EmittedAt,
	})
	return u.Seq, nil
}

// Transition applies one state-machine event and returns the resulting
// snapshot. Redelivery of an event to a session already resting in that
// event's terminal status is a no-op.
func (r *Registry) Transition(ctx context.Context, id string, ev Event) (Session, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return r.applyLocked(ctx, e, ev, "")
}

// EndSession drives a session to its terminal state. ReasonError and
// ReasonTimeout fail the session; any other reason completes it, draining
// through completing if the session is still active. Ending an already
// terminal session is treated as satisfied.
func (r *Registry) EndSession(ctx context.Context, id string, reason string) (Session, error) {
	if reason == "" {
		reason = ReasonRequested
	}
	e, err := r.lookup(id)
	if err != nil {
		return Session{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.s.Status.Terminal() {
		return e.snapshotLocked(), nil
	}

	if reason == ReasonError || reason == ReasonTimeout {
		return r.applyLocked(ctx, e, EventFailed, reason)
	}

	if e.s.Status == StatusActive || e.s.Status == StatusInitializing {
		if _, err := r.applyLocked(ctx, e, EventEndRequested, reason); err != nil {
			return Session{}, err
		}
		if e.s.Status.Terminal() {
			return e.snapshotLocked(), nil
		}
	}
	return r.applyLocked(ctx, e, EventDrained, reason)
}

/* ===================== SWEEP ===================== */

// Run executes the background sweep until ctx is cancelled. The sweep is the
// only actor permitted to fail a session without an external event.
func (r *Registry) Run(ctx context.Context) {
	t := time.NewTicker(r.cfg.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.sweepOnce(ctx)
		}
	}
}

func (r *Registry) sweepOnce(ctx context.Context) {
	now := r.clock()

	r.mu.RLock()
	var stale []string
	for id, e := range r.sessions {
		// Racy read is fine here; the transition below re-checks under the
		// entry lock and tolerates a concurrent attach.
		if e.s.Status == StatusInitializing && now.Sub(e.s.StartedAt) >= r.cfg.AttachTimeout {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range stale {
		e, err := r.lookup(id)
		if err != nil {
			continue
		}
		e.mu.Lock()
		if e.s.Status == StatusInitializing && now.Sub(e.s.StartedAt) >= r.cfg.AttachTimeout {
			if _, err := r.applyLocked(ctx, e, EventAttachTimeout, ReasonTimeout); err == nil {
				r.log.Warn("session attach timed out", "session_id", id)
			}
		}
		e.mu.Unlock()
	}
}

/* ===================== INTERNAL ===================== */

func (r *Registry) lookup(id string) (*entry, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: session id required", ErrValidation)
	}
	r.mu.RLock()
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

// applyLocked applies one event with e.mu held.
func (r *Registry) applyLocked(ctx context.Context, e *entry, ev Event, reason string) (Session, error) {
	cur := e.s.Status

	next, ok := transitions[cur][ev]
	if !ok {
		if cur.Terminal() && terminalTarget[ev] == cur {
			// Idempotent redelivery of the terminal event.
			return e.snapshotLocked(), nil
		}
		return Session{}, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, cur)
	}

	e.s.Status = next
	if next.Terminal() {
		now := r.clock().UTC()
		e.s.EndedAt = &now
		if reason == "" {
			reason = string(ev)
		}
		e.s.EndReason = reason

		// Lock order note at the top of the type: r.mu may be taken while
		// holding e.mu, never the reverse.
		r.mu.Lock()
		delete(r.active, activeKey{channel: e.s.Channel, ref: e.s.ParticipantRef})
		r.mu.Unlock()
	}

	r.publish(ctx, fanout.Event{
		SessionID: e.s.ID,
		Kind:      fanout.KindStatus,
		Status:    string(next),
		At:        r.clock().UTC(),
	})

	r.log.Info("session transition", "session_id", e.s.ID, "event", ev, "from", cur, "to", next)
	return e.snapshotLocked(), nil
}

func (r *Registry) publish(ctx context.Context, ev fanout.Event) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(ctx, ev)
}

func (e *entry) snapshotLocked() Session {
	out := e.s
	out.Metadata = copyMetadata(e.s.Metadata)
	if e.s.EndedAt != nil {
		t := *e.s.EndedAt
		out.EndedAt = &t
	}
	return out
}

func copyMetadata(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
