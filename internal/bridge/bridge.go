// Package bridge normalizes heterogeneous real-time inputs (telephony
// webhooks, streaming transports) into the registry's primitives: attach,
// detach and inbound frames. Frame payloads are opaque here; they are handed
// to the AI responder and its replies are relayed back over the same
// transport in arrival order.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"voice-platform/internal/ai"
	"voice-platform/internal/session"
)

// Transport is the outbound side of an attached real-time channel.
type Transport interface {
	// Send delivers one reply frame. It must tolerate being called after the
	// underlying connection went away.
	Send(ctx context.Context, sessionID string, payload []byte) error
}

// Config controls bridge behavior.
type Config struct {
	// MemoTTL bounds how long an external call id stays memoized.
	MemoTTL time.Duration

	// FrameBuffer is the per-session relay queue depth.
	FrameBuffer int
}

func (c Config) withDefaults() Config {
	out := c
	if out.MemoTTL <= 0 {
		out.MemoTTL = 24 * time.Hour
	}
	if out.FrameBuffer <= 0 {
		out.FrameBuffer = 64
	}
	return out
}

// Bridge mediates between external real-time channels and the registry.
// At most one live transport may be attached per session.
type Bridge struct {
	cfg       Config
	registry  *session.Registry
	responder ai.Responder
	memo      CallMemo
	log       *slog.Logger

	mu       sync.Mutex
	attached map[string]*attachment
}

type attachment struct {
	sessionID string
	transport Transport

	// frames preserves arrival order; a single relay goroutine consumes it.
	frames chan []byte
	quit   chan struct{}
	done   chan struct{}
}

func New(cfg Config, registry *session.Registry, responder ai.Responder, memo CallMemo, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	if memo == nil {
		memo = NewMemoryCallMemo()
	}
	return &Bridge{
		cfg:       cfg.withDefaults(),
		registry:  registry,
		responder: responder,
		memo:      memo,
		log:       log,
		attached:  map[string]*attachment{},
	}
}

/* ===================== TRANSPORT LIFECYCLE ===================== */

// Attach binds a live transport to the session and activates it. A second
// attach while one is live fails with ErrConflict and leaves the existing
// attachment undisturbed.
func (b *Bridge) Attach(ctx context.Context, sessionID string, t Transport) error {
	if t == nil {
		return fmt.Errorf("%w: transport required", session.ErrValidation)
	}

	b.mu.Lock()
	if _, ok := b.attached[sessionID]; ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: transport already attached to %s", session.ErrConflict, sessionID)
	}
	if _, err := b.registry.Transition(ctx, sessionID, session.EventAttached); err != nil {
		b.mu.Unlock()
		return err
	}
	a := &attachment{
		sessionID: sessionID,
		transport: t,
		frames:    make(chan []byte, b.cfg.FrameBuffer),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	b.attached[sessionID] = a
	b.mu.Unlock()

	go b.relay(a)
	return nil
}

// Detach removes the session's transport (if any) and drives the session
// toward its terminal state. Detaching an already terminal session is a
// no-op.
func (b *Bridge) Detach(ctx context.Context, sessionID, reason string) error {
	b.mu.Lock()
	a, hadTransport := b.attached[sessionID]
	if hadTransport {
		delete(b.attached, sessionID)
		close(a.quit)
	}
	b.mu.Unlock()

	s, err := b.registry.Transition(ctx, sessionID, session.EventDisconnected)
	if err != nil {
		if errors.Is(err, session.ErrInvalidTransition) {
			if cur, gerr := b.registry.GetSession(ctx, sessionID); gerr == nil && cur.Status.Terminal() {
				return nil
			}
		}
		return err
	}
	if s.Status != session.StatusCompleting {
		return nil
	}

	if hadTransport {
		// Completion waits for the relay to finish in-flight work.
		go func() {
			<-a.done
			if _, err := b.registry.Transition(context.Background(), sessionID, session.EventDrained); err != nil {
				b.log.Warn("drain transition failed", "session_id", sessionID, "err", err)
			}
		}()
		return nil
	}

	_, err = b.registry.Transition(ctx, sessionID, session.EventDrained)
	return err
}

// HandleFrame enqueues one inbound frame for the session's relay. Frames for
// sessions without a live transport are rejected.
func (b *Bridge) HandleFrame(ctx context.Context, sessionID string, payload []byte) error {
	b.mu.Lock()
	a, ok := b.attached[sessionID]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: no transport attached to %s", session.ErrInvalidState, sessionID)
	}

	select {
	case a.frames <- payload:
		return nil
	default:
		return fmt.Errorf("%w: frame queue full for %s", session.ErrTimeout, sessionID)
	}
}

// Attached reports whether the session currently has a live transport.
func (b *Bridge) Attached(sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.attached[sessionID]
	return ok
}

/* ===================== WEBHOOK INTAKE ===================== */

// HandleCallStarted resolves an inbound telephony call to a session, creating
// one if absent. Redelivery with the same external call id returns the same
// session.
func (b *Bridge) HandleCallStarted(ctx context.Context, callID, from string, metadata map[string]string) (session.Session, error) {
	if callID == "" || from == "" {
		return session.Session{}, fmt.Errorf("%w: call id and caller required", session.ErrValidation)
	}

	if sid, ok, err := b.memo.Lookup(ctx, callID); err != nil {
		return session.Session{}, err
	} else if ok {
		return b.registry.GetSession(ctx, sid)
	}

	s, ok := b.registry.FindActive(ctx, session.ChannelVoice, from)
	if !ok {
		var err error
		s, err = b.registry.CreateSession(ctx, session.ChannelVoice, from, metadata)
		if errors.Is(err, session.ErrConflict) {
			// Lost a race with a concurrent intake for the same caller.
			if s, ok = b.registry.FindActive(ctx, session.ChannelVoice, from); !ok {
				return session.Session{}, err
			}
		} else if err != nil {
			return session.Session{}, err
		}
	}

	boundID, err := b.memo.Remember(ctx, callID, s.ID, b.cfg.MemoTTL)
	if err != nil {
		return session.Session{}, err
	}
	if boundID != s.ID {
		// Another node already bound this call id; its session wins.
		return b.registry.GetSession(ctx, boundID)
	}
	return s, nil
}

// KnownCall reports whether the external call id is already bound to a
// session.
func (b *Bridge) KnownCall(ctx context.Context, callID string) bool {
	_, ok, err := b.memo.Lookup(ctx, callID)
	return err == nil && ok
}

// HandleCallEnded reacts to a channel-level termination signal for the call.
// Unknown call ids are ignored.
func (b *Bridge) HandleCallEnded(ctx context.Context, callID string) error {
	sid, ok, err := b.memo.Lookup(ctx, callID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := b.Detach(ctx, sid, session.ReasonHangup); err != nil {
		return err
	}
	return b.memo.Forget(ctx, callID)
}

/* ===================== RELAY ===================== */

func (b *Bridge) relay(a *attachment) {
	defer close(a.done)
	for {
		select {
		case <-a.quit:
			// Transport is gone; anything still queued cannot be answered.
			for {
				select {
				case <-a.frames:
				default:
					return
				}
			}
		case payload := <-a.frames:
			b.process(a, payload)
		}
	}
}

// process records one customer turn, asks the responder for the reply, and
// relays it. Frames are processed one at a time per session, which is what
// preserves reply order.
func (b *Bridge) process(a *attachment, payload []byte) {
	ctx := context.Background()
	text := string(payload)

	if _, err := b.registry.AppendUtterance(ctx, a.sessionID, session.SpeakerCustomer, text); err != nil {
		b.log.Warn("inbound utterance rejected", "session_id", a.sessionID, "err", err)
		return
	}

	reply, err := b.responder.Respond(ctx, a.sessionID, text)
	if err != nil {
		b.log.Error("responder failed", "session_id", a.sessionID, "err", err)
		return
	}

	if _, err := b.registry.AppendUtterance(ctx, a.sessionID, session.SpeakerAgent, reply); err != nil {
		b.log.Warn("reply utterance rejected", "session_id", a.sessionID, "err", err)
	}
	if err := a.transport.Send(ctx, a.sessionID, []byte(reply)); err != nil {
		b.log.Warn("reply send failed", "session_id", a.sessionID, "err", err)
	}
}
