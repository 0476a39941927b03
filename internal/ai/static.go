package ai

import (
	"context"

	"voice-platform/internal/session"
)

// Static is a canned responder/summarizer for local development and tests,
// wired when no AI endpoint is configured (non-production only).
type Static struct {
	Reply string
}

func NewStatic() *Static {
	return &Static{Reply: "Thanks, could you tell me a bit more about your business?"}
}

func (s *Static) Respond(ctx context.Context, sessionID, text string) (string, error) {
	return s.Reply, nil
}

func (s *Static) Summarize(ctx context.Context, transcript []session.Utterance) (Summary, error) {
	return FallbackSummary(transcript), nil
}
