package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voice-platform/internal/ai"
	"voice-platform/internal/bridge"
	"voice-platform/internal/config"
	"voice-platform/internal/fanout"
	"voice-platform/internal/media"
	"voice-platform/internal/recall"
	"voice-platform/internal/session"

	"github.com/gin-gonic/gin"
)

type stubSummarizer struct {
	summary ai.Summary
	err     error
}

func (s stubSummarizer) Summarize(context.Context, []session.Utterance) (ai.Summary, error) {
	return s.summary, s.err
}

type stubRecall struct {
	recall.Null
	ctx recall.Context
}

func (s stubRecall) Fetch(context.Context, string) (recall.Context, error) {
	return s.ctx, nil
}

type harness struct {
	router   *gin.Engine
	registry *session.Registry
}

func newHarness(t *testing.T, h Handlers) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := session.NewRegistry(session.Config{}, fanout.NewMemoryBus(nil), nil)
	h.Registry = reg
	if h.Bridge == nil {
		h.Bridge = bridge.New(bridge.Config{}, reg, ai.NewStatic(), bridge.NewMemoryCallMemo(), nil)
	}
	if h.Summarizer == nil {
		h.Summarizer = stubSummarizer{summary: ai.Summary{Text: "discussed coverage"}}
	}
	if h.Recall == nil {
		h.Recall = recall.Null{}
	}
	if h.Issuer == nil {
		issuer, err := media.NewIssuer(config.MediaConfig{APIKey: "api-key", APISecret: "api-secret", TokenTTL: time.Hour})
		if err != nil {
			t.Fatalf("issuer: %v", err)
		}
		h.Issuer = issuer
	}

	r := gin.New()
	r.GET("/health", h.Health)
	r.POST("/conversations", h.CreateConversation)
	r.GET("/conversations/:id", h.GetConversation)
	r.POST("/conversations/:id/end", h.EndConversation)
	r.GET("/conversations/:id/memory", h.GetConversationMemory)
	r.POST("/livekit/token", h.IssueMediaToken)

	return &harness{router: r, registry: reg}
}

func (hs *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	hs.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestCreateConversation(t *testing.T) {
	hs := newHarness(t, Handlers{})

	w := hs.do(t, http.MethodPost, "/conversations", gin.H{"customerId": "cust-1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var got struct {
		ConversationID string `json:"conversationId"`
		Status         string `json:"status"`
		Message        string `json:"message"`
	}
	decode(t, w, &got)
	if got.ConversationID == "" || got.Status != string(session.StatusInitializing) {
		t.Fatalf("unexpected response %+v", got)
	}
	if got.Message == "" {
		t.Fatalf("expected message, got %+v", got)
	}
}

func TestCreateConversation_DuplicateParticipantConflicts(t *testing.T) {
	hs := newHarness(t, Handlers{})

	if w := hs.do(t, http.MethodPost, "/conversations", gin.H{"customerId": "cust-1"}); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if w := hs.do(t, http.MethodPost, "/conversations", gin.H{"customerId": "cust-1"}); w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateConversation_Rejections(t *testing.T) {
	hs := newHarness(t, Handlers{})

	if w := hs.do(t, http.MethodPost, "/conversations", gin.H{}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without participant, got %d", w.Code)
	}
	if w := hs.do(t, http.MethodPost, "/conversations", gin.H{"customerId": "c", "channel": "carrier-pigeon"}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown channel, got %d", w.Code)
	}
}

func TestGetConversation(t *testing.T) {
	hs := newHarness(t, Handlers{})

	ctx := context.Background()
	s, err := hs.registry.CreateSession(ctx, session.ChannelVoice, "cust-2", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := hs.registry.Transition(ctx, s.ID, session.EventAttached); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := hs.registry.AppendUtterance(ctx, s.ID, session.SpeakerCustomer, "hello"); err != nil {
		t.Fatalf("append: %v", err)
	}

	w := hs.do(t, http.MethodGet, "/conversations/"+s.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var got conversationDetail
	decode(t, w, &got)
	if got.ConversationID != s.ID || got.Status != string(session.StatusActive) {
		t.Fatalf("unexpected view %+v", got)
	}
	if len(got.Transcript) != 1 || got.Transcript[0].Text != "hello" || got.Transcript[0].Seq != 0 {
		t.Fatalf("unexpected transcript %+v", got.Transcript)
	}
}

func TestGetConversation_Unknown(t *testing.T) {
	hs := newHarness(t, Handlers{})
	if w := hs.do(t, http.MethodGet, "/conversations/nope", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestEndConversation(t *testing.T) {
	hs := newHarness(t, Handlers{Summarizer: stubSummarizer{summary: ai.Summary{Text: "wants a quote", NextSteps: []string{"send quote"}}}})

	ctx := context.Background()
	s, _ := hs.registry.CreateSession(ctx, session.ChannelVoice, "cust-3", nil)
	hs.registry.Transition(ctx, s.ID, session.EventAttached)

	w := hs.do(t, http.MethodPost, "/conversations/"+s.ID+"/end", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var got struct {
		ConversationID string   `json:"conversationId"`
		Status         string   `json:"status"`
		Summary        string   `json:"summary"`
		NextSteps      []string `json:"nextSteps"`
	}
	decode(t, w, &got)
	if got.ConversationID != s.ID || got.Status != string(session.StatusCompleted) {
		t.Fatalf("unexpected response %+v", got)
	}
	if got.Summary != "wants a quote" || len(got.NextSteps) != 1 {
		t.Fatalf("unexpected summary %+v", got)
	}

	// Ending again is satisfied, not an error.
	if w := hs.do(t, http.MethodPost, "/conversations/"+s.ID+"/end", nil); w.Code != http.StatusOK {
		t.Fatalf("expected idempotent 200, got %d", w.Code)
	}
}

func TestEndConversation_SummarizerFailureDegrades(t *testing.T) {
	hs := newHarness(t, Handlers{Summarizer: stubSummarizer{err: context.DeadlineExceeded}})

	ctx := context.Background()
	s, _ := hs.registry.CreateSession(ctx, session.ChannelVoice, "cust-4", nil)
	hs.registry.Transition(ctx, s.ID, session.EventAttached)

	w := hs.do(t, http.MethodPost, "/conversations/"+s.ID+"/end", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var got struct {
		Summary string `json:"summary"`
	}
	decode(t, w, &got)
	if got.Summary == "" {
		t.Fatalf("expected fallback summary, got %+v", got)
	}
}

func TestGetConversationMemory(t *testing.T) {
	mem := recall.Context{
		ParticipantRef: "cust-5",
		Facts:          []recall.Fact{{Subject: "cust-5", Predicate: "owns", Object: "motorcycle"}},
	}
	hs := newHarness(t, Handlers{Recall: stubRecall{ctx: mem}})

	s, _ := hs.registry.CreateSession(context.Background(), session.ChannelVoice, "cust-5", nil)

	w := hs.do(t, http.MethodGet, "/conversations/"+s.ID+"/memory", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var got recall.Context
	decode(t, w, &got)
	if len(got.Facts) != 1 || got.Facts[0].Object != "motorcycle" {
		t.Fatalf("unexpected memory %+v", got)
	}
}

func TestIssueMediaToken(t *testing.T) {
	hs := newHarness(t, Handlers{})

	w := hs.do(t, http.MethodPost, "/livekit/token", gin.H{"identity": "cust-6", "room": "conv-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var got struct {
		Token     string `json:"token"`
		Identity  string `json:"identity"`
		Room      string `json:"room"`
		ExpiresIn int    `json:"expiresIn"`
	}
	decode(t, w, &got)
	if got.Token == "" || got.Identity != "cust-6" || got.Room != "conv-1" {
		t.Fatalf("unexpected credential %+v", got)
	}
	if got.ExpiresIn != 3600 {
		t.Fatalf("unexpected ttl %d", got.ExpiresIn)
	}
}

func TestIssueMediaToken_Rejections(t *testing.T) {
	hs := newHarness(t, Handlers{})

	if w := hs.do(t, http.MethodPost, "/livekit/token", gin.H{"room": "conv-1"}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without identity, got %d", w.Code)
	}
	if w := hs.do(t, http.MethodPost, "/livekit/token", gin.H{"identity": "cust-6"}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without room, got %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	hs := newHarness(t, Handlers{})
	if w := hs.do(t, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestWriteError_StatusCodes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", session.ErrNotFound, http.StatusNotFound},
		{"conflict", session.ErrConflict, http.StatusConflict},
		{"invalid state", session.ErrInvalidState, http.StatusBadRequest},
		{"invalid transition", session.ErrInvalidTransition, http.StatusBadRequest},
		{"validation", session.ErrValidation, http.StatusBadRequest},
		{"timeout", session.ErrTimeout, http.StatusGatewayTimeout},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

			Handlers{}.writeError(c, fmt.Errorf("op failed: %w", tc.err))
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}
