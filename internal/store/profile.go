package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// profileRepo implements ProfileRepo. Revisions are never updated in
// place; the global sequence orders them.
type profileRepo struct {
	db  *sql.DB
	seq *sequenceCounter
}

func (r *profileRepo) Append(ctx context.Context, rec *ProfileRecord) error {
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	res, err := r.db.ExecContext(ctx, `INSERT INTO profiles
		(sequence, learner_id, scope, topic, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		seqNum, rec.LearnerID, rec.Scope, rec.Topic, rec.Data, formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save profile revision: %w", err)
	}

	rec.Sequence = seqNum
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

func (r *profileRepo) Latest(ctx context.Context, learnerID, scope, topic string) (*ProfileRecord, error) {
	recs, err := r.History(ctx, learnerID, scope, topic, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

func (r *profileRepo) History(ctx context.Context, learnerID, scope, topic string, limit int) ([]ProfileRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, sequence, learner_id, scope, topic, data, created_at
		FROM profiles WHERE learner_id = ? AND scope = ? AND topic = ?
		ORDER BY sequence DESC`+limitClause(limit),
		learnerID, scope, topic)
	if err != nil {
		return nil, fmt.Errorf("query profile history: %w", err)
	}
	defer rows.Close()

	var out []ProfileRecord
	for rows.Next() {
		var rec ProfileRecord
		var created string
		if err := rows.Scan(&rec.ID, &rec.Sequence, &rec.LearnerID, &rec.Scope, &rec.Topic,
			&rec.Data, &created); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		if rec.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *profileRepo) Prune(ctx context.Context, learnerID, scope, topic string, keep int) error {
	// Sequence of the newest revision to drop.
	var threshold int64
	err := r.db.QueryRowContext(ctx, `SELECT sequence FROM profiles
		WHERE learner_id = ? AND scope = ? AND topic = ?
		ORDER BY sequence DESC LIMIT 1 OFFSET ?`,
		learnerID, scope, topic, keep,
	).Scan(&threshold)
	if errors.Is(err, sql.ErrNoRows) {
		return nil // fewer than keep revisions exist
	}
	if err != nil {
		return fmt.Errorf("query profiles for prune: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `DELETE FROM profiles
		WHERE learner_id = ? AND scope = ? AND topic = ? AND sequence <= ?`,
		learnerID, scope, topic, threshold)
	if err != nil {
		return fmt.Errorf("prune profiles: %w", err)
	}
	return nil
}
