// Package ai consumes the external LLM completion capability. The gateway
// never reasons about model quality or prompt content beyond relaying frames;
// everything here is a thin adapter boundary.
package ai

import (
	"context"

	"voice-platform/internal/session"
)

// Responder produces the agent's reply to one inbound utterance.
type Responder interface {
	Respond(ctx context.Context, sessionID, text string) (string, error)
}

// Summary is the end-of-call digest handed back to API clients.
type Summary struct {
	Text                string   `json:"summary"`
	NextSteps           []string `json:"next_steps"`
	DocumentationNeeded []string `json:"documentation_needed"`
}

// Summarizer digests a finished transcript.
type Summarizer interface {
	Summarize(ctx context.Context, transcript []session.Utterance) (Summary, error)
}

// FallbackSummary is used when the summarizer capability is unavailable; the
// caller still receives a well-formed response.
func FallbackSummary(transcript []session.Utterance) Summary {
	return Summary{
		Text:      "Summary unavailable; transcript recorded.",
		NextSteps: []string{"Review call transcript"},
	}
}
