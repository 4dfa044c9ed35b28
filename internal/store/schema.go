package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id          TEXT PRIMARY KEY,
		learner_id  TEXT NOT NULL,
		node_id     TEXT NOT NULL,
		topic       TEXT NOT NULL DEFAULT '',
		phase       TEXT NOT NULL,
		data        BLOB NOT NULL,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS sessions_learner ON sessions (learner_id, updated_at)`,

	`CREATE TABLE IF NOT EXISTS profiles (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		sequence    INTEGER NOT NULL,
		learner_id  TEXT NOT NULL,
		scope       TEXT NOT NULL,
		topic       TEXT NOT NULL DEFAULT '',
		data        BLOB NOT NULL,
		created_at  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS profiles_owner ON profiles (learner_id, scope, topic, sequence)`,

	`CREATE TABLE IF NOT EXISTS llm_request_events (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		sequence       INTEGER NOT NULL,
		timestamp      TEXT NOT NULL,
		provider       TEXT NOT NULL,
		model          TEXT NOT NULL,
		purpose        TEXT NOT NULL,
		session_id     TEXT NOT NULL DEFAULT '',
		input_tokens   INTEGER NOT NULL DEFAULT 0,
		output_tokens  INTEGER NOT NULL DEFAULT 0,
		latency_ms     INTEGER NOT NULL DEFAULT 0,
		success        INTEGER NOT NULL,
		error_message  TEXT NOT NULL DEFAULT '',
		request_body   TEXT NOT NULL DEFAULT '',
		response_body  TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS session_events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		sequence    INTEGER NOT NULL,
		timestamp   TEXT NOT NULL,
		session_id  TEXT NOT NULL,
		kind        TEXT NOT NULL,
		provenance  TEXT NOT NULL,
		phase       TEXT NOT NULL DEFAULT '',
		detail      TEXT NOT NULL DEFAULT '',
		data        BLOB
	)`,
	`CREATE INDEX IF NOT EXISTS session_events_session ON session_events (session_id, sequence)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

// Timestamps are stored as UTC RFC 3339 text so they sort lexically and
// round-trip with nanosecond precision.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
