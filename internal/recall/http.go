package recall

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"voice-platform/internal/config"
)

// HTTPStore is a JSON-over-HTTP adapter for the memory collaborator.
// The remote keys everything by participant reference.
type HTTPStore struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPStore(cfg config.RecallConfig) (*HTTPStore, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("recall: endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPStore{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (s *HTTPStore) Fetch(ctx context.Context, participantRef string) (Context, error) {
	u := s.endpoint + "/memory/" + url.PathEscape(participantRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Context{}, err
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return Context{}, fmt.Errorf("recall request failed: %w", err)
	}
	defer resp.Body.Close()

	// The store answers 404 for participants it has never seen; that is an
	// empty context here, not a failure.
	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return Context{ParticipantRef: participantRef}, nil
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return Context{}, fmt.Errorf("recall endpoint returned %d", resp.StatusCode)
	}

	var out Context
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Context{}, fmt.Errorf("recall response decode failed: %w", err)
	}
	if out.ParticipantRef == "" {
		out.ParticipantRef = participantRef
	}
	return out, nil
}

func (s *HTTPStore) Record(ctx context.Context, entry Entry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/memory", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("recall request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return fmt.Errorf("recall endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (s *HTTPStore) authorize(req *http.Request) {
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
}
