package workflow

import (
	"context"
	"log/slog"
	"time"

	"voice-platform/internal/ai"
	"voice-platform/internal/fanout"
	"voice-platform/internal/recall"
	"voice-platform/internal/session"
)

// Runner watches the event stream and, when a conversation completes, drives
// the post-call pipeline: summarize the transcript, dispatch follow-up work,
// and submit the outcome for long-term retention. Failures are logged and do
// not affect the conversation itself.
type Runner struct {
	bus        fanout.Bus
	registry   *session.Registry
	summarizer ai.Summarizer
	dispatcher Dispatcher
	store      recall.Store
	log        *slog.Logger
}

func NewRunner(bus fanout.Bus, registry *session.Registry, summarizer ai.Summarizer, dispatcher Dispatcher, store recall.Store, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	if dispatcher == nil {
		dispatcher = Null{}
	}
	if store == nil {
		store = recall.Null{}
	}
	return &Runner{
		bus:        bus,
		registry:   registry,
		summarizer: summarizer,
		dispatcher: dispatcher,
		store:      store,
		log:        log,
	}
}

// Run blocks until ctx is canceled. Call it from its own goroutine.
func (r *Runner) Run(ctx context.Context) {
	events, cancel := r.bus.Subscribe(ctx)
	defer cancel()

	for ev := range events {
		if ev.Kind != fanout.KindStatus || session.Status(ev.Status) != session.StatusCompleted {
			continue
		}
		r.handle(ctx, ev.SessionID)
	}
}

func (r *Runner) handle(ctx context.Context, sessionID string) {
	s, err := r.registry.GetSession(ctx, sessionID)
	if err != nil {
		r.log.Warn("post-call lookup failed", "session_id", sessionID, "err", err)
		return
	}

	transcript, err := r.registry.Transcript(ctx, sessionID)
	if err != nil {
		r.log.Warn("post-call transcript failed", "session_id", sessionID, "err", err)
		return
	}

	summary, err := r.summarizer.Summarize(ctx, transcript)
	if err != nil {
		r.log.Warn("post-call summarize failed, using fallback", "session_id", sessionID, "err", err)
		summary = ai.FallbackSummary(transcript)
	}

	endedAt := time.Now().UTC()
	if s.EndedAt != nil {
		endedAt = *s.EndedAt
	}

	task := Task{
		SessionID:           s.ID,
		ParticipantRef:      s.ParticipantRef,
		EndedAt:             endedAt,
		DurationSeconds:     s.DurationSeconds(endedAt),
		EndReason:           s.EndReason,
		Summary:             summary.Text,
		NextSteps:           summary.NextSteps,
		DocumentationNeeded: summary.DocumentationNeeded,
	}
	if err := r.dispatcher.Dispatch(ctx, task); err != nil {
		r.log.Error("post-call dispatch failed", "session_id", sessionID, "err", err)
	}

	entry := recall.Entry{
		ParticipantRef: s.ParticipantRef,
		SessionID:      s.ID,
		EndedAt:        endedAt,
		Summary:        summary.Text,
	}
	if err := r.store.Record(ctx, entry); err != nil {
		r.log.Error("post-call retention failed", "session_id", sessionID, "err", err)
	}
}
