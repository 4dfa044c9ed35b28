package store

import (
	"context"
	"fmt"
)

func (r *eventRepo) AppendSessionEvent(ctx context.Context, data SessionEventData) error {
	if data.SessionID == "" || data.Kind == "" {
		return fmt.Errorf("session event requires session id and kind")
	}

	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO session_events
		(sequence, timestamp, session_id, kind, provenance, phase, detail, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		seqNum, formatTime(r.clock()), data.SessionID, data.Kind, data.Provenance,
		data.Phase, data.Detail, data.Data,
	)
	if err != nil {
		return fmt.Errorf("save session event: %w", err)
	}
	return nil
}

func (r *eventRepo) QuerySessionEvents(ctx context.Context, sessionID string, opts QueryOpts) ([]SessionEvent, error) {
	where, args := whereClause(opts, []string{"session_id = ?"}, []any{sessionID})
	rows, err := r.db.QueryContext(ctx, `SELECT id, sequence, timestamp, session_id, kind,
		provenance, phase, detail, data FROM session_events`+where+
		" ORDER BY sequence ASC"+limitClause(opts.Limit), args...)
	if err != nil {
		return nil, fmt.Errorf("query session events: %w", err)
	}
	defer rows.Close()

	var out []SessionEvent
	for rows.Next() {
		var e SessionEvent
		var ts string
		if err := rows.Scan(&e.ID, &e.Sequence, &ts, &e.SessionID, &e.Kind,
			&e.Provenance, &e.Phase, &e.Detail, &e.Data); err != nil {
			return nil, fmt.Errorf("scan session event: %w", err)
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
