package telephony

import (
	"net/http"

	"voice-platform/internal/bridge"
	"voice-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	fallbackMessage = "We are unable to take your call right now. Please try again later."
	busyMessage     = "All of our agents are busy. Please call back shortly."
)

// WebhookHandler converts provider webhooks to bridge intake calls and writes
// the call-control response.
//
// Failure behavior: the far end is a telephony carrier, not a programmable
// client. Every path, including internal failure, answers 200 with valid
// markup; errors surface only in logs.
type WebhookHandler struct {
	Bridge *bridge.Bridge

	// StreamURL is the public wss endpoint the caller's media is directed to.
	StreamURL string

	// Limiter, when set, caps concurrent calls; callers over the cap hear a
	// busy message.
	Limiter *CallLimiter
}

func (h WebhookHandler) HandleInboundCall(c *gin.Context) {
	log := logger.FromGin(c)

	form, err := ParseInboundCall(c.Request)
	if err != nil || form.CallSid == "" {
		log.Warn("telephony webhook parse failed", "err", err)
		writeTwiML(c, RenderSayHangup(fallbackMessage))
		return
	}

	ctx := c.Request.Context()

	if form.Ended() {
		known := h.Bridge.KnownCall(ctx, form.CallSid)
		if err := h.Bridge.HandleCallEnded(ctx, form.CallSid); err != nil {
			log.Error("call teardown failed", "call_sid", form.CallSid, "err", err)
		}
		if known && h.Limiter != nil {
			if err := h.Limiter.Release(ctx); err != nil {
				log.Warn("call cap release failed", "call_sid", form.CallSid, "err", err)
			}
		}
		writeTwiML(c, RenderSayHangup(""))
		return
	}

	acquired := false
	if h.Limiter != nil && !h.Bridge.KnownCall(ctx, form.CallSid) {
		ok, err := h.Limiter.Acquire(ctx)
		if err != nil {
			// Fail open when the cap check itself errors.
			log.Warn("call cap check failed", "call_sid", form.CallSid, "err", err)
		} else if !ok {
			log.Info("call rejected by concurrency cap", "call_sid", form.CallSid)
			writeTwiML(c, RenderSayHangup(busyMessage))
			return
		} else {
			acquired = true
		}
	}

	s, err := h.Bridge.HandleCallStarted(ctx, form.CallSid, form.From, form.Metadata())
	if err != nil {
		log.Error("call intake failed", "call_sid", form.CallSid, "err", err)
		if acquired {
			if rerr := h.Limiter.Release(ctx); rerr != nil {
				log.Warn("call cap release failed", "call_sid", form.CallSid, "err", rerr)
			}
		}
		writeTwiML(c, RenderSayHangup(fallbackMessage))
		return
	}

	twiml, err := RenderStream(h.StreamURL, map[string]string{
		"conversationId": s.ID,
	})
	if err != nil {
		log.Error("twiml render failed", "call_sid", form.CallSid, "err", err)
		writeTwiML(c, RenderSayHangup(fallbackMessage))
		return
	}

	log.Info("inbound call routed", "call_sid", form.CallSid, "session_id", s.ID)
	writeTwiML(c, twiml)
}

func writeTwiML(c *gin.Context, body string) {
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, body)
}
