package media

import (
	"errors"
	"testing"
	"time"

	"voice-platform/internal/config"
)

func newTestIssuer(t *testing.T, ttl time.Duration) *Issuer {
	t.Helper()
	iss, err := NewIssuer(config.MediaConfig{APIKey: "key", APISecret: "secret", TokenTTL: ttl})
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	return iss
}

func TestIssuer_DeterministicExpiry(t *testing.T) {
	iss := newTestIssuer(t, time.Hour)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	iss.clock = func() time.Time { return now }

	cred, err := iss.Issue("agent-1", "room-42")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !cred.IssuedAt.Equal(now) {
		t.Fatalf("issued_at: expected %v, got %v", now, cred.IssuedAt)
	}
	if !cred.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("expires_at: expected %v, got %v", now.Add(time.Hour), cred.ExpiresAt)
	}
	if cred.ExpiresIn() != 3600 {
		t.Fatalf("expected 3600s ttl, got %d", cred.ExpiresIn())
	}
}

func TestIssuer_RejectsEmptyInputs(t *testing.T) {
	iss := newTestIssuer(t, time.Hour)

	if _, err := iss.Issue("", "room"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := iss.Issue("identity", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := iss.Issue("  ", "room"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for whitespace identity, got %v", err)
	}
}

func TestIssuer_VerifyRoundTrip(t *testing.T) {
	iss := newTestIssuer(t, time.Hour)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	iss.clock = func() time.Time { return now }

	cred, err := iss.Issue("agent-1", "room-42")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := iss.Verify(cred.Token, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "agent-1" {
		t.Fatalf("subject: got %q", claims.Subject)
	}
	if claims.Video.Room != "room-42" || !claims.Video.RoomJoin {
		t.Fatalf("grant: got %+v", claims.Video)
	}
}

func TestIssuer_VerifyRejectsExpired(t *testing.T) {
	iss := newTestIssuer(t, time.Hour)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	iss.clock = func() time.Time { return now }

	cred, err := iss.Issue("agent-1", "room-42")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := iss.Verify(cred.Token, now.Add(2*time.Hour)); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestIssuer_VerifyRejectsForeignSignature(t *testing.T) {
	iss := newTestIssuer(t, time.Hour)

	other, err := NewIssuer(config.MediaConfig{APIKey: "key", APISecret: "different", TokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	cred, err := other.Issue("agent-1", "room-42")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := iss.Verify(cred.Token, time.Now()); err == nil {
		t.Fatalf("expected signature error")
	}
}
