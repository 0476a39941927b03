package config

import (
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "voice", SSLMode: ""},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Media: MediaConfig{APIKey: "lk-key", APISecret: "lk-secret"},
		Telephony: TelephonyConfig{
			StreamURL: "wss://gw.example.com/stream",
		},
	}
}

func TestLoad_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Media.TokenTTL != time.Hour {
		t.Fatalf("expected 1h token ttl default, got %v", c.Media.TokenTTL)
	}
	if c.Session.AttachTimeout != 30*time.Second {
		t.Fatalf("expected 30s attach timeout default, got %v", c.Session.AttachTimeout)
	}
}

func TestValidate_ProductionRequiresCollaborators(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.DB.SSLMode = "require"
	// Missing Twilio credentials and AI endpoint must fail in production.
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without telephony/AI config")
	}

	c.Telephony.AccountSID = "AC123"
	c.Telephony.AuthToken = "tok"
	c.AI.Endpoint = "https://llm.example.com/v1/complete"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_RejectsNonWSStreamURL(t *testing.T) {
	c := validLocal()
	c.Telephony.StreamURL = "https://gw.example.com/stream"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for non-ws stream url")
	}
}
