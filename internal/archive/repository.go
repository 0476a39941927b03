package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"voice-platform/internal/session"
)

// NOTE: This repository assumes the following tables exist:
// - archived_sessions (one row per terminal session, id is the primary key)
// - archived_utterances (append-only, UNIQUE (session_id, seq))

func insertSession(ctx context.Context, tx *sql.Tx, s session.Session, archivedAt time.Time) (bool, error) {
	const q = `
INSERT INTO archived_sessions
	(id, channel, status, participant_ref, started_at, ended_at, end_reason, metadata, archived_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO NOTHING
`
	meta, err := json.Marshal(s.Metadata)
	if err != nil {
		return false, err
	}

	var endedAt sql.NullTime
	if s.EndedAt != nil {
		endedAt = sql.NullTime{Time: *s.EndedAt, Valid: true}
	}

	res, err := tx.ExecContext(ctx, q,
		s.ID,
		string(s.Channel),
		string(s.Status),
		s.ParticipantRef,
		s.StartedAt,
		endedAt,
		s.EndReason,
		string(meta),
		archivedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func insertUtterance(ctx context.Context, tx *sql.Tx, sessionID string, u session.Utterance) error {
	const q = `
INSERT INTO archived_utterances
	(session_id, seq, speaker, text, emitted_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (session_id, seq) DO NOTHING
`
	_, err := tx.ExecContext(ctx, q,
		sessionID,
		u.Seq,
		string(u.Speaker),
		u.Text,
		u.EmittedAt,
	)
	return err
}
