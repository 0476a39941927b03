// Package archive persists finished conversations to Postgres. The registry
// stays the in-memory authority for live sessions; the archive is the durable
// record written once a session reaches a terminal state.
package archive

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"voice-platform/internal/fanout"
	"voice-platform/internal/session"
	"voice-platform/pkg/utils"
)

// Service writes terminal sessions and their transcripts.
type Service struct {
	db *sql.DB
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, clock: time.Now}
}

// Archive persists one terminal session and its full transcript in a single
// transaction. Redelivery of the same session is a no-op.
func (s *Service) Archive(ctx context.Context, sess session.Session, transcript []session.Utterance) error {
	if !sess.Status.Terminal() {
		return session.ErrInvalidState
	}

	archivedAt := s.clock().UTC()
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		inserted, err := insertSession(ctx, tx, sess, archivedAt)
		if err != nil {
			return err
		}
		if !inserted {
			// Already archived; the transcript went in with it.
			return nil
		}
		for _, u := range transcript {
			if err := insertUtterance(ctx, tx, sess.ID, u); err != nil {
				return err
			}
		}
		return nil
	})
}

// Runner subscribes to the event stream and archives every session that
// reaches a terminal state.
type Runner struct {
	bus      fanout.Bus
	registry *session.Registry
	svc      *Service
	log      *slog.Logger
}

func NewRunner(bus fanout.Bus, registry *session.Registry, svc *Service, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{bus: bus, registry: registry, svc: svc, log: log}
}

// Run blocks until ctx is canceled. Call it from its own goroutine.
func (r *Runner) Run(ctx context.Context) {
	events, cancel := r.bus.Subscribe(ctx)
	defer cancel()

	for ev := range events {
		if ev.Kind != fanout.KindStatus || !session.Status(ev.Status).Terminal() {
			continue
		}
		r.handle(ctx, ev.SessionID)
	}
}

func (r *Runner) handle(ctx context.Context, sessionID string) {
	s, err := r.registry.GetSession(ctx, sessionID)
	if err != nil {
		r.log.Warn("archive lookup failed", "session_id", sessionID, "err", err)
		return
	}
	transcript, err := r.registry.Transcript(ctx, sessionID)
	if err != nil {
		r.log.Warn("archive transcript failed", "session_id", sessionID, "err", err)
		return
	}
	if err := r.svc.Archive(ctx, s, transcript); err != nil {
		r.log.Error("archive write failed", "session_id", sessionID, "err", err)
	}
}
