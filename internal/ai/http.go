package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"voice-platform/internal/config"
	"voice-platform/internal/session"
)

// HTTPClient is a JSON-over-HTTP adapter for the LLM completion capability.
// The remote contract is (prompt -> text); reply generation and transcript
// summarization are two modes of the same endpoint.
type HTTPClient struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

func NewHTTPClient(cfg config.AIConfig) (*HTTPClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("ai: endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

type completionRequest struct {
	Mode      string       `json:"mode"` // "reply" or "summary"
	Model     string       `json:"model,omitempty"`
	SessionID string       `json:"session_id,omitempty"`
	Input     string       `json:"input,omitempty"`
	Turns     []promptTurn `json:"turns,omitempty"`
}

type promptTurn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type completionResponse struct {
	Text                string   `json:"text"`
	NextSteps           []string `json:"next_steps,omitempty"`
	DocumentationNeeded []string `json:"documentation_needed,omitempty"`
}

func (c *HTTPClient) Respond(ctx context.Context, sessionID, text string) (string, error) {
	res, err := c.invoke(ctx, completionRequest{
		Mode:      "reply",
		Model:     c.model,
		SessionID: sessionID,
		Input:     text,
	})
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

func (c *HTTPClient) Summarize(ctx context.Context, transcript []session.Utterance) (Summary, error) {
	turns := make([]promptTurn, 0, len(transcript))
	for _, u := range transcript {
		turns = append(turns, promptTurn{Speaker: string(u.Speaker), Text: u.Text})
	}
	res, err := c.invoke(ctx, completionRequest{
		Mode:  "summary",
		Model: c.model,
		Turns: turns,
	})
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Text:                res.Text,
		NextSteps:           res.NextSteps,
		DocumentationNeeded: res.DocumentationNeeded,
	}, nil
}

func (c *HTTPClient) invoke(ctx context.Context, req completionRequest) (completionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return completionResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return completionResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return completionResponse{}, fmt.Errorf("ai request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little for connection reuse; body content is untrusted.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return completionResponse{}, fmt.Errorf("ai endpoint returned %d", resp.StatusCode)
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return completionResponse{}, fmt.Errorf("ai response decode failed: %w", err)
	}
	return out, nil
}
