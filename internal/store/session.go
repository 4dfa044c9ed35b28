package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// sessionRepo implements SessionRepo. Upsert is an idempotent overwrite
// keyed by session id, so a failed save can simply be repeated.
type sessionRepo struct {
	db *sql.DB
}

func (r *sessionRepo) Upsert(ctx context.Context, rec *SessionRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("session record has no id")
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO sessions
		(id, learner_id, node_id, topic, phase, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			learner_id = excluded.learner_id,
			node_id    = excluded.node_id,
			topic      = excluded.topic,
			phase      = excluded.phase,
			data       = excluded.data,
			updated_at = excluded.updated_at`,
		rec.ID, rec.LearnerID, rec.NodeID, rec.Topic, rec.Phase, rec.Data,
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", rec.ID, err)
	}
	return nil
}

func (r *sessionRepo) Get(ctx context.Context, id string) (*SessionRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, learner_id, node_id, topic, phase, data,
		created_at, updated_at FROM sessions WHERE id = ?`, id)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (r *sessionRepo) List(ctx context.Context, learnerID string, limit int) ([]SessionRecord, error) {
	query := `SELECT id, learner_id, node_id, topic, phase, data, created_at, updated_at
		FROM sessions`
	var args []any
	if learnerID != "" {
		query += " WHERE learner_id = ?"
		args = append(args, learnerID)
	}
	query += " ORDER BY updated_at DESC" + limitClause(limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanSession(s scanner) (*SessionRecord, error) {
	var rec SessionRecord
	var created, updated string
	err := s.Scan(&rec.ID, &rec.LearnerID, &rec.NodeID, &rec.Topic, &rec.Phase, &rec.Data,
		&created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &rec, nil
}
