package telephony

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"voice-platform/internal/bridge"
	"voice-platform/internal/fanout"
	"voice-platform/internal/session"

	"github.com/gin-gonic/gin"
)

type silentResponder struct{}

func (silentResponder) Respond(context.Context, string, string) (string, error) {
	return "ok", nil
}

func newWebhookRouter(t *testing.T) (*gin.Engine, *session.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := session.NewRegistry(session.Config{}, fanout.NewMemoryBus(nil), nil)
	b := bridge.New(bridge.Config{}, reg, silentResponder{}, bridge.NewMemoryCallMemo(), nil)

	r := gin.New()
	h := WebhookHandler{Bridge: b, StreamURL: "wss://gw.example.com/stream"}
	r.POST("/webhooks/telephony", h.HandleInboundCall)
	return r, reg
}

func postForm(r *gin.Engine, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telephony", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhook_InboundCallReturnsStreamTwiML(t *testing.T) {
	r, reg := newWebhookRouter(t)

	w := postForm(r, url.Values{
		"CallSid":    {"CA100"},
		"From":       {"+15551234567"},
		"To":         {"+15557654321"},
		"CallStatus": {"ringing"},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/xml") {
		t.Fatalf("expected xml content type, got %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, `<Stream url="wss://gw.example.com/stream">`) {
		t.Fatalf("expected stream redirect, got: %s", body)
	}

	s, ok := reg.FindActive(context.Background(), session.ChannelVoice, "+15551234567")
	if !ok {
		t.Fatalf("expected session for caller")
	}
	if !strings.Contains(body, s.ID) {
		t.Fatalf("expected conversation id %s in twiml: %s", s.ID, body)
	}
	if s.Metadata["call_sid"] != "CA100" {
		t.Fatalf("expected call sid metadata, got %+v", s.Metadata)
	}
}

func TestWebhook_RedeliveryDoesNotDuplicate(t *testing.T) {
	r, reg := newWebhookRouter(t)

	form := url.Values{
		"CallSid":    {"CA101"},
		"From":       {"+15551230009"},
		"CallStatus": {"ringing"},
	}
	first := postForm(r, form)
	second := postForm(r, form)

	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("expected 200s, got %d and %d", first.Code, second.Code)
	}
	s1, _ := reg.FindActive(context.Background(), session.ChannelVoice, "+15551230009")
	if !strings.Contains(second.Body.String(), s1.ID) {
		t.Fatalf("redelivery answered a different session")
	}
}

func TestWebhook_MalformedStillAnswersTwiML(t *testing.T) {
	r, _ := newWebhookRouter(t)

	// No CallSid at all.
	w := postForm(r, url.Values{"From": {"+15550000000"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 fallback, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<Hangup") {
		t.Fatalf("expected fallback twiml, got: %s", w.Body.String())
	}
}

func TestWebhook_CallEndedAnswersHangup(t *testing.T) {
	r, reg := newWebhookRouter(t)

	postForm(r, url.Values{"CallSid": {"CA102"}, "From": {"+15551230010"}, "CallStatus": {"ringing"}})
	s, _ := reg.FindActive(context.Background(), session.ChannelVoice, "+15551230010")

	w := postForm(r, url.Values{"CallSid": {"CA102"}, "From": {"+15551230010"}, "CallStatus": {"completed"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<Hangup") {
		t.Fatalf("expected hangup twiml, got: %s", w.Body.String())
	}

	got, err := reg.GetSession(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Status.Terminal() {
		t.Fatalf("expected terminal status after teardown, got %s", got.Status)
	}
}
