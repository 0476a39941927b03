// Package workflow hands finished conversations to the orchestration service
// that owns follow-up work (quote preparation, document requests, callbacks).
package workflow

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
)

// Task describes one finished conversation's follow-up workload.
type Task struct {
	SessionID           string    `json:"sessionId"`
	ParticipantRef      string    `json:"participantRef"`
	EndedAt             time.Time `json:"endedAt"`
	DurationSeconds     int       `json:"durationSeconds"`
	EndReason           string    `json:"endReason"`
	Summary             string    `json:"summary"`
	NextSteps           []string  `json:"nextSteps,omitempty"`
	DocumentationNeeded []string  `json:"documentationNeeded,omitempty"`
}

// Dispatcher submits post-call tasks to the orchestrator.
type Dispatcher interface {
	Dispatch(ctx context.Context, task Task) error
}

// Null is the Dispatcher used when no orchestrator is configured.
type Null struct{}

func (Null) Dispatch(ctx context.Context, task Task) error { return nil }

// HTTPDispatcher submits tasks over JSON HTTP.
type HTTPDispatcher struct {
	endpoint string
	client   *http.Client
}

func NewHTTPDispatcher(cfg config.WorkflowConfig) (*HTTPDispatcher, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("workflow: endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPDispatcher{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (d *HTTPDispatcher) Dispatch(ctx context.Context, task Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/workflows/post-call", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("workflow dispatch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return fmt.Errorf("workflow endpoint returned %d", resp.StatusCode)
	}
	return nil
}
