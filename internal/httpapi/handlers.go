package httpapi

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"voice-platform/internal/ai"
	"voice-platform/internal/bridge"
	"voice-platform/internal/media"
	"voice-platform/internal/recall"
	"voice-platform/internal/session"
	"voice-platform/pkg/logger"
	"voice-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Registry   *session.Registry
	Bridge     *bridge.Bridge
	Issuer     *media.Issuer
	Summarizer ai.Summarizer
	Recall     recall.Store

	// DB and Redis are optional; when present, health includes them.
	DB    *sql.DB
	Redis *redis.Client

	// Clock is injectable for deterministic tests; nil means time.Now.
	Clock func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now()
}

// --- Wire shapes ---

type createConversationRequest struct {
	CustomerID     string            `json:"customerId"`
	PhoneNumber    string            `json:"phoneNumber"`
	Channel        string            `json:"channel"`
	InitialContext map[string]string `json:"initialContext"`
}

type conversationView struct {
	ConversationID  string            `json:"conversationId"`
	Channel         string            `json:"channel"`
	Status          string            `json:"status"`
	CustomerID      string            `json:"customerId"`
	StartedAt       time.Time         `json:"startedAt"`
	EndedAt         *time.Time        `json:"endedAt,omitempty"`
	EndReason       string            `json:"endReason,omitempty"`
	DurationSeconds int               `json:"durationSeconds"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type utteranceView struct {
	Seq       int64     `json:"seq"`
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	EmittedAt time.Time `json:"emittedAt"`
}

func (h Handlers) viewOf(s session.Session) conversationView {
	return conversationView{
		ConversationID:  s.ID,
		Channel:         string(s.Channel),
		Status:          string(s.Status),
		CustomerID:      s.ParticipantRef,
		StartedAt:       s.StartedAt,
		EndedAt:         s.EndedAt,
		EndReason:       s.EndReason,
		DurationSeconds: s.DurationSeconds(h.now()),
		Metadata:        s.Metadata,
	}
}

func transcriptViews(ts []session.Utterance) []utteranceView {
	out := make([]utteranceView, 0, len(ts))
	for _, u := range ts {
		out = append(out, utteranceView{
			Seq:       u.Seq,
			Speaker:   string(u.Speaker),
			Text:      u.Text,
			EmittedAt: u.EmittedAt,
		})
	}
	return out
}

// --- Conversations ---

// CreateConversation starts a new session in initializing state. The caller
// then connects a stream (or a call arrives) to activate it.
func (h Handlers) CreateConversation(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	participant := req.CustomerID
	if participant == "" {
		participant = req.PhoneNumber
	}
	channel := session.ChannelVoice
	if req.Channel != "" {
		channel = session.Channel(req.Channel)
	}

	s, err := h.Registry.CreateSession(c.Request.Context(), channel, participant, req.InitialContext)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"conversationId": s.ID,
		"status":         string(s.Status),
		"message":        "conversation created",
	})
}

func (h Handlers) GetConversation(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	s, err := h.Registry.GetSession(ctx, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	transcript, err := h.Registry.Transcript(ctx, id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, conversationDetail{
		conversationView: h.viewOf(s),
		Transcript:       transcriptViews(transcript),
	})
}

type conversationDetail struct {
	conversationView
	Transcript []utteranceView `json:"transcript"`
}

// EndConversation ends the session (idempotently) and returns the terminal
// state plus an end-of-call summary. Summarizer failures degrade to a
// fallback summary rather than failing the request.
func (h Handlers) EndConversation(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	s, err := h.Registry.EndSession(ctx, id, session.ReasonRequested)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if h.Bridge != nil {
		// Drop any live transport; the session is already terminal so this
		// only cleans up.
		if err := h.Bridge.Detach(ctx, id, session.ReasonRequested); err != nil {
			logger.FromGin(c).Warn("transport cleanup failed", "session_id", id, "err", err)
		}
	}

	transcript, err := h.Registry.Transcript(ctx, id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	summary, err := h.Summarizer.Summarize(ctx, transcript)
	if err != nil {
		logger.FromGin(c).Warn("summarize failed, using fallback", "session_id", id, "err", err)
		summary = ai.FallbackSummary(transcript)
	}

	c.JSON(http.StatusOK, gin.H{
		"conversationId":      s.ID,
		"status":              string(s.Status),
		"durationSeconds":     s.DurationSeconds(h.now()),
		"summary":             summary.Text,
		"nextSteps":           summary.NextSteps,
		"documentationNeeded": summary.DocumentationNeeded,
	})
}

// GetConversationMemory returns what the long-term store knows about the
// conversation's participant.
func (h Handlers) GetConversationMemory(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	s, err := h.Registry.GetSession(ctx, id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	mem, err := h.Recall.Fetch(ctx, s.ParticipantRef)
	if err != nil {
		logger.FromGin(c).Error("memory fetch failed", "session_id", id, "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "memory store unavailable"})
		return
	}
	c.JSON(http.StatusOK, mem)
}

// --- Media credentials ---

type tokenRequest struct {
	Identity string `json:"identity"`
	Room     string `json:"room"`
}

// IssueMediaToken mints a room join credential for the media provider.
func (h Handlers) IssueMediaToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	cred, err := h.Issuer.Issue(req.Identity, req.Room)
	if err != nil {
		if errors.Is(err, media.ErrValidation) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.FromGin(c).Error("token issuance failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":     cred.Token,
		"identity":  cred.SubjectIdentity,
		"room":      cred.Room,
		"expiresIn": cred.ExpiresIn(),
	})
}

// --- Health ---

func (h Handlers) Health(c *gin.Context) {
	ctx := c.Request.Context()

	if h.DB != nil {
		if err := utils.HealthCheck(ctx, h.DB, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
	}
	if h.Redis != nil {
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- Error mapping ---

// writeError maps internal error kinds to HTTP statuses without leaking
// internals to the client.
func (h Handlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
	case errors.Is(err, session.ErrConflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "conversation already active for participant"})
	case errors.Is(err, session.ErrInvalidState), errors.Is(err, session.ErrInvalidTransition):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "conversation state does not allow this operation"})
	case errors.Is(err, session.ErrValidation):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrTimeout):
		c.AbortWithStatusJSON(http.StatusGatewayTimeout, gin.H{"error": "operation timed out"})
	default:
		logger.FromGin(c).Error("request failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
