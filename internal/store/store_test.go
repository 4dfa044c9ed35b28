package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPragmasApplied(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()

	tests := []struct {
		pragma string
		want   string
	}{
		// WAL mode falls back to "memory" for in-memory databases,
		// so journal_mode is not checked here.
		{"foreign_keys", "1"},
		{"synchronous", "1"}, // NORMAL = 1
	}

	for _, tt := range tests {
		var got string
		if err := db.QueryRow("PRAGMA " + tt.pragma).Scan(&got); err != nil {
			t.Errorf("PRAGMA %s: %v", tt.pragma, err)
			continue
		}
		if got != tt.want {
			t.Errorf("PRAGMA %s = %q, want %q", tt.pragma, got, tt.want)
		}
	}
}

func TestMigrationCreatesTables(t *testing.T) {
	s := openTestStore(t)
	for _, table := range []string{"sessions", "profiles", "llm_request_events", "session_events", "global_sequence"} {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Fatalf("table %s: %v", table, err)
		}
	}
}

func TestSessionUpsertAndGet(t *testing.T) {
	s := openTestStore(t)
	repo := s.SessionRepo()
	ctx := context.Background()

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	created := time.Date(2026, 3, 1, 9, 30, 0, 123456789, time.UTC)
	rec := &SessionRecord{
		ID:        "s-1",
		LearnerID: "learner-1",
		NodeID:    "fractions",
		Topic:     "arithmetic",
		Phase:     "intro",
		Data:      []byte(`{"phase":"intro"}`),
		CreatedAt: created,
		UpdatedAt: created,
	}
	if err := repo.Upsert(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rec.Phase = "teaching"
	rec.Data = []byte(`{"phase":"teaching"}`)
	rec.UpdatedAt = created.Add(time.Minute)
	if err := repo.Upsert(ctx, rec); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := repo.Get(ctx, "s-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Phase != "teaching" || string(got.Data) != `{"phase":"teaching"}` {
		t.Fatalf("unexpected record after overwrite: %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("created_at = %s, want %s", got.CreatedAt, created)
	}
	if !got.UpdatedAt.Equal(created.Add(time.Minute)) {
		t.Errorf("updated_at = %s", got.UpdatedAt)
	}

	var count int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM sessions").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("sessions = %d, want 1", count)
	}
}

func TestSessionList(t *testing.T) {
	s := openTestStore(t)
	repo := s.SessionRepo()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, learner := range []string{"a", "b", "a"} {
		err := repo.Upsert(ctx, &SessionRecord{
			ID:        fmt.Sprintf("s-%d", i),
			LearnerID: learner,
			NodeID:    "n",
			Phase:     "intro",
			Data:      []byte(`{}`),
			CreatedAt: base,
			UpdatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}

	all, err := repo.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != "s-2" {
		t.Fatalf("expected newest first, got %+v", all)
	}

	mine, err := repo.List(ctx, "a", 1)
	if err != nil {
		t.Fatalf("list a: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != "s-2" {
		t.Fatalf("unexpected filtered list %+v", mine)
	}
}

func TestProfileHistoryLatestAndPrune(t *testing.T) {
	s := openTestStore(t)
	repo := s.ProfileRepo()
	ctx := context.Background()

	latest, err := repo.Latest(ctx, "learner-1", "generic", "")
	if err != nil {
		t.Fatalf("latest (empty): %v", err)
	}
	if latest != nil {
		t.Fatal("expected nil profile when none exist")
	}

	for i := 1; i <= 7; i++ {
		err := repo.Append(ctx, &ProfileRecord{
			LearnerID: "learner-1",
			Scope:     "generic",
			Data:      []byte(fmt.Sprintf(`{"version":%d}`, i)),
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	// A topic revision for the same learner is a separate history.
	if err := repo.Append(ctx, &ProfileRecord{
		LearnerID: "learner-1", Scope: "topic", Topic: "calculus", Data: []byte(`{"version":1}`),
	}); err != nil {
		t.Fatalf("append topic: %v", err)
	}

	latest, err = repo.Latest(ctx, "learner-1", "generic", "")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if string(latest.Data) != `{"version":7}` {
		t.Fatalf("latest = %s, want version 7", latest.Data)
	}

	if err := repo.Prune(ctx, "learner-1", "generic", "", 5); err != nil {
		t.Fatalf("prune: %v", err)
	}
	history, err := repo.History(ctx, "learner-1", "generic", "", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 5 {
		t.Fatalf("remaining revisions = %d, want 5", len(history))
	}
	if string(history[0].Data) != `{"version":7}` {
		t.Errorf("newest after prune = %s", history[0].Data)
	}

	// Prune with more than available is a no-op.
	if err := repo.Prune(ctx, "learner-1", "topic", "calculus", 5); err != nil {
		t.Fatalf("prune topic: %v", err)
	}
	topic, err := repo.Latest(ctx, "learner-1", "topic", "calculus")
	if err != nil || topic == nil {
		t.Fatalf("topic profile lost: %v", err)
	}
}

func TestLLMEventsQueryAndStats(t *testing.T) {
	s := openTestStore(t)
	repo := s.EventRepo()
	ctx := context.Background()

	events := []LLMRequestEventData{
		{Provider: "mock", Model: "gpt-4o-mini", Purpose: "tutor-turn", SessionID: "s-1", InputTokens: 100, OutputTokens: 50, LatencyMs: 200, Success: true, RequestBody: "[user]\nhi", ResponseBody: "hello"},
		{Provider: "mock", Model: "gpt-4o-mini", Purpose: "tutor-turn", SessionID: "s-1", InputTokens: 120, OutputTokens: 40, LatencyMs: 400, Success: false, ErrorMessage: "timeout"},
		{Provider: "mock", Model: "gemini-2.5-flash", Purpose: "profile-generic", InputTokens: 900, OutputTokens: 80, LatencyMs: 300, Success: true},
	}
	for _, e := range events {
		if err := repo.AppendLLMRequest(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := repo.QueryLLMEvents(ctx, QueryOpts{Limit: 2})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 || got[0].Purpose != "profile-generic" {
		t.Fatalf("expected newest first with limit, got %+v", got)
	}

	first, err := repo.GetLLMEvent(ctx, got[1].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if first.Success || first.ErrorMessage != "timeout" {
		t.Fatalf("unexpected event %+v", first)
	}
	if missing, err := repo.GetLLMEvent(ctx, 9999); err != nil || missing != nil {
		t.Fatalf("expected (nil, nil) for missing event, got (%v, %v)", missing, err)
	}

	byPurpose, err := repo.LLMUsageByPurpose(ctx)
	if err != nil {
		t.Fatalf("usage by purpose: %v", err)
	}
	if len(byPurpose) != 2 {
		t.Fatalf("expected 2 purposes, got %d", len(byPurpose))
	}
	turn := byPurpose[1]
	if turn.Purpose != "tutor-turn" || turn.Calls != 2 || turn.InputTokens != 220 || turn.AvgLatencyMs != 300 {
		t.Fatalf("unexpected tutor-turn usage %+v", turn)
	}

	byModel, err := repo.LLMUsageByModel(ctx)
	if err != nil {
		t.Fatalf("usage by model: %v", err)
	}
	if len(byModel) != 2 || byModel[0].Model != "gemini-2.5-flash" {
		t.Fatalf("unexpected model usage %+v", byModel)
	}

	bySession, err := repo.LLMUsageBySession(ctx)
	if err != nil {
		t.Fatalf("usage by session: %v", err)
	}
	if len(bySession) != 2 || bySession[1].SessionID != "s-1" || bySession[1].OutputTokens != 90 {
		t.Fatalf("unexpected session usage %+v", bySession)
	}
}

func TestSessionEventsOrdered(t *testing.T) {
	s := openTestStore(t)
	repo := s.EventRepo()
	ctx := context.Background()

	kinds := []string{KindTransition, KindCommand, KindAnomaly}
	for _, k := range kinds {
		err := repo.AppendSessionEvent(ctx, SessionEventData{
			SessionID:  "s-1",
			Kind:       k,
			Provenance: ProvenanceModel,
			Phase:      "teaching",
		})
		if err != nil {
			t.Fatalf("append %s: %v", k, err)
		}
	}
	if err := repo.AppendSessionEvent(ctx, SessionEventData{SessionID: "s-2", Kind: KindIncident}); err != nil {
		t.Fatalf("append other: %v", err)
	}
	if err := repo.AppendSessionEvent(ctx, SessionEventData{Kind: KindIncident}); err == nil {
		t.Fatal("expected error for missing session id")
	}

	got, err := repo.QuerySessionEvents(ctx, "s-1", QueryOpts{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	for i, e := range got {
		if e.Kind != kinds[i] {
			t.Errorf("event %d kind = %s, want %s", i, e.Kind, kinds[i])
		}
		if i > 0 && e.Sequence <= got[i-1].Sequence {
			t.Errorf("sequence not increasing at %d", i)
		}
	}

	after, err := repo.QuerySessionEvents(ctx, "s-1", QueryOpts{After: got[0].Sequence})
	if err != nil {
		t.Fatalf("query after: %v", err)
	}
	if len(after) != 2 {
		t.Fatalf("expected 2 events after first, got %d", len(after))
	}
}

func TestSequenceCounter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sc, err := newSequenceCounter(s.DB())
	if err != nil {
		t.Fatalf("new sequence counter: %v", err)
	}

	var prev int64
	for i := 0; i < 5; i++ {
		seq, err := sc.Next(ctx)
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if seq <= prev {
			t.Errorf("seq[%d] = %d, not greater than %d", i, seq, prev)
		}
		prev = seq
	}
}

func TestTimeRoundTrip(t *testing.T) {
	in := time.Date(2026, 1, 2, 3, 4, 5, 6, time.FixedZone("IST", 5*3600+1800))
	out, err := parseTime(formatTime(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !out.Equal(in) {
		t.Fatalf("round trip %s != %s", out, in)
	}
}
