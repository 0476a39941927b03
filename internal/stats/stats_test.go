package stats

import (
	"context"
	"testing"
	"time"

	"voice-platform/internal/fanout"
	"voice-platform/internal/session"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestCollector_CountsOutcomes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := fanout.NewMemoryBus(nil)
	reg := session.NewRegistry(session.Config{}, bus, nil)
	col := NewCollector(bus, reg)
	go col.Run(ctx)
	time.Sleep(10 * time.Millisecond)

	completed, err := reg.CreateSession(ctx, session.ChannelVoice, "cust-1", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	reg.Transition(ctx, completed.ID, session.EventAttached)
	if _, err := reg.AppendUtterance(ctx, completed.ID, session.SpeakerCustomer, "hi"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := reg.EndSession(ctx, completed.ID, session.ReasonRequested); err != nil {
		t.Fatalf("end: %v", err)
	}

	failed, err := reg.CreateSession(ctx, session.ChannelVoice, "cust-2", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := reg.EndSession(ctx, failed.ID, session.ReasonError); err != nil {
		t.Fatalf("end: %v", err)
	}

	waitFor(t, func() bool {
		s := col.Snapshot()
		return s.Completed == 1 && s.Failed == 1
	})

	s := col.Snapshot()
	if s.Activated != 1 {
		t.Fatalf("expected 1 activation, got %d", s.Activated)
	}
	if s.Utterances != 1 {
		t.Fatalf("expected 1 utterance, got %d", s.Utterances)
	}
}
