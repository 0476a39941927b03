package recall

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voice-platform/internal/config"
)

func TestHTTPStore_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/memory/cust-42" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		json.NewEncoder(w).Encode(Context{
			ParticipantRef: "cust-42",
			Facts:          []Fact{{Subject: "cust-42", Predicate: "owns", Object: "2019 sedan"}},
		})
	}))
	defer srv.Close()

	s, err := NewHTTPStore(config.RecallConfig{Endpoint: srv.URL, APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	got, err := s.Fetch(context.Background(), "cust-42")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got.Facts) != 1 || got.Facts[0].Object != "2019 sedan" {
		t.Fatalf("unexpected context %+v", got)
	}
}

func TestHTTPStore_FetchUnknownParticipantIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	s, err := NewHTTPStore(config.RecallConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	got, err := s.Fetch(context.Background(), "stranger")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got.ParticipantRef != "stranger" || len(got.Facts) != 0 || len(got.PastSessions) != 0 {
		t.Fatalf("expected empty context, got %+v", got)
	}
}

func TestHTTPStore_FetchServerErrorFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s, _ := NewHTTPStore(config.RecallConfig{Endpoint: srv.URL})
	if _, err := s.Fetch(context.Background(), "cust-42"); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestHTTPStore_Record(t *testing.T) {
	var got Entry
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/memory" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s, _ := NewHTTPStore(config.RecallConfig{Endpoint: srv.URL})
	entry := Entry{
		ParticipantRef: "cust-42",
		SessionID:      "s1",
		EndedAt:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Summary:        "asked about comprehensive coverage",
	}
	if err := s.Record(context.Background(), entry); err != nil {
		t.Fatalf("record: %v", err)
	}
	if got.SessionID != "s1" || got.Summary != entry.Summary {
		t.Fatalf("server saw %+v", got)
	}
}

func TestNewHTTPStore_RequiresEndpoint(t *testing.T) {
	if _, err := NewHTTPStore(config.RecallConfig{}); err == nil {
		t.Fatal("expected error without endpoint")
	}
}

func TestNull(t *testing.T) {
	var s Store = Null{}
	got, err := s.Fetch(context.Background(), "anyone")
	if err != nil || got.ParticipantRef != "anyone" {
		t.Fatalf("fetch: %+v %v", got, err)
	}
	if err := s.Record(context.Background(), Entry{}); err != nil {
		t.Fatalf("record: %v", err)
	}
}
