// Package stream exposes the bidirectional real-time channel used by media
// gateways. A single WebSocket connection can carry frames for any number of
// conversations; each frame names the conversation it belongs to.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"voice-platform/internal/bridge"
	"voice-platform/internal/fanout"
	"voice-platform/internal/session"

	"github.com/coder/websocket"
)

// Frame type discriminators on the wire.
const (
	TypeVoiceStream  = "voiceStream"
	TypeAIResponse   = "aiResponse"
	TypeSessionEvent = "sessionEvent"
	TypeError        = "error"
)

// Frame is the single wire envelope for both directions. Which fields are
// populated depends on Type.
type Frame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	Payload        string `json:"payload,omitempty"`
	Text           string `json:"text,omitempty"`
	Status         string `json:"status,omitempty"`
	Message        string `json:"message,omitempty"`
}

// Handler upgrades HTTP requests to WebSocket connections and relays frames
// between the gateway and the bridge.
type Handler struct {
	bridge *bridge.Bridge
	bus    fanout.Bus
	log    *slog.Logger
}

func NewHandler(b *bridge.Bridge, bus fanout.Bus, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{bridge: b, bus: bus, log: log}
}

// ServeHTTP handles GET /stream. The handler is mounted directly on the
// http.Server mux rather than behind the router: the upgrade hijacks the
// underlying connection, which router-level response writers refuse once any
// status has been written.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Error("websocket accept failed", "err", err)
		return
	}
	defer ws.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cn := &conn{
		ws:       ws,
		attached: map[string]struct{}{},
		out:      make(chan Frame, 32),
		closed:   make(chan struct{}),
	}

	go cn.writeLoop(ctx, h.log)
	go h.relayEvents(ctx, cn)

	h.readLoop(ctx, cn)

	close(cn.closed)
	cancel()
	for _, id := range cn.snapshot() {
		if err := h.bridge.Detach(context.Background(), id, session.ReasonHangup); err != nil {
			h.log.Warn("detach on close failed", "session_id", id, "err", err)
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, cn *conn) {
	for {
		_, data, err := cn.ws.Read(ctx)
		if err != nil {
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			cn.send(Frame{Type: TypeError, Message: "malformed frame"})
			continue
		}

		switch f.Type {
		case TypeVoiceStream:
			h.handleVoice(ctx, cn, f)
		default:
			cn.send(Frame{Type: TypeError, ConversationID: f.ConversationID, Message: "unsupported frame type"})
		}
	}
}

func (h *Handler) handleVoice(ctx context.Context, cn *conn, f Frame) {
	if f.ConversationID == "" {
		cn.send(Frame{Type: TypeError, Message: "conversationId required"})
		return
	}

	// Mark before attaching so status events published during activation
	// already pass the relay filter.
	if first := cn.mark(f.ConversationID); first {
		if err := h.bridge.Attach(ctx, f.ConversationID, cn); err != nil {
			cn.unmark(f.ConversationID)
			cn.send(Frame{Type: TypeError, ConversationID: f.ConversationID, Message: attachMessage(err)})
			return
		}
	}

	if err := h.bridge.HandleFrame(ctx, f.ConversationID, []byte(f.Payload)); err != nil {
		cn.send(Frame{Type: TypeError, ConversationID: f.ConversationID, Message: frameMessage(err)})
	}
}

// relayEvents pushes status changes for conversations attached on this
// connection. Utterances are not relayed; replies travel as aiResponse.
func (h *Handler) relayEvents(ctx context.Context, cn *conn) {
	events, cancel := h.bus.Subscribe(ctx)
	defer cancel()

	for ev := range events {
		if ev.Kind != fanout.KindStatus {
			continue
		}
		if !cn.isAttached(ev.SessionID) {
			continue
		}
		cn.send(Frame{Type: TypeSessionEvent, ConversationID: ev.SessionID, Status: ev.Status})
	}
}

func attachMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return "unknown conversation"
	case errors.Is(err, session.ErrConflict):
		return "conversation already has a live stream"
	case errors.Is(err, session.ErrInvalidTransition), errors.Is(err, session.ErrInvalidState):
		return "conversation is not accepting a stream"
	default:
		return "attach failed"
	}
}

func frameMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrTimeout):
		return "stream backpressure, frame dropped"
	case errors.Is(err, session.ErrInvalidState):
		return "conversation has no live stream"
	default:
		return "frame rejected"
	}
}

/* ===================== CONNECTION ===================== */

// conn is one WebSocket connection. It implements bridge.Transport so replies
// for any conversation attached here come back over the same socket. A single
// write loop serializes all outbound frames.
type conn struct {
	ws *websocket.Conn

	mu       sync.Mutex
	attached map[string]struct{}

	out    chan Frame
	closed chan struct{}
}

// Send implements bridge.Transport. Sends after the connection closed are
// silently dropped.
func (c *conn) Send(ctx context.Context, sessionID string, payload []byte) error {
	c.enqueue(ctx, Frame{Type: TypeAIResponse, ConversationID: sessionID, Text: string(payload)})
	return nil
}

func (c *conn) send(f Frame) {
	c.enqueue(context.Background(), f)
}

func (c *conn) enqueue(ctx context.Context, f Frame) {
	select {
	case c.out <- f:
	case <-c.closed:
	case <-ctx.Done():
	}
}

func (c *conn) writeLoop(ctx context.Context, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case f := <-c.out:
			data, err := json.Marshal(f)
			if err != nil {
				log.Error("frame marshal failed", "err", err)
				continue
			}
			if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}
}

// mark records the conversation as attached on this connection and reports
// whether this was the first frame for it.
func (c *conn) mark(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.attached[id]; ok {
		return false
	}
	c.attached[id] = struct{}{}
	return true
}

func (c *conn) unmark(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.attached, id)
}

func (c *conn) isAttached(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.attached[id]
	return ok
}

func (c *conn) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.attached))
	for id := range c.attached {
		ids = append(ids, id)
	}
	return ids
}
