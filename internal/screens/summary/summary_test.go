package summary

import (
	"strings"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/autodidact/internal/objectives"
	"github.com/abhisek/autodidact/internal/session"
)

func testSummary() *session.Summary {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(25 * time.Minute)
	return &session.Summary{
		SessionID: "s-1",
		NodeTitle: "Linear functions",
		Phase:     session.PhaseCompleted,
		Objectives: []objectives.Objective{
			{ID: "obj-1", Description: "Read slope from a graph", Status: objectives.StatusCompleted, Provenance: objectives.ProvenanceAssessed, Score: 1},
			{ID: "obj-2", Description: "Write y = mx + b", Status: objectives.StatusCompleted, Provenance: objectives.ProvenanceForced, Score: objectives.ForcedScore},
		},
		Progress:  objectives.Progress{Completed: 2, Total: 2, Forced: 1},
		Percent:   100,
		StartedAt: start,
		EndedAt:   end,
		Duration:  25 * time.Minute,
		Messages:  12,
		Completion: &session.Completion{
			CompletedAt:        end,
			Score:              0.925,
			AssessedObjectives: 1,
			ForcedObjectives:   1,
		},
	}
}

func TestSummaryScreen_Title(t *testing.T) {
	s := New(testSummary())
	if s.Title() != "Session Summary" {
		t.Errorf("Title = %q, want %q", s.Title(), "Session Summary")
	}
}

func TestSummaryScreen_Display(t *testing.T) {
	s := New(testSummary())
	view := s.View(80, 24)
	for _, want := range []string{"Session complete!", "Linear functions", "2/2", "Read slope from a graph", "forced, 85%", "25:00"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestSummaryScreen_InProgress(t *testing.T) {
	sum := testSummary()
	sum.Completion = nil
	view := New(sum).View(80, 24)
	if !strings.Contains(view, "Session in progress") {
		t.Error("expected in-progress heading without a completion record")
	}
}

func TestSummaryScreen_NilSummary(t *testing.T) {
	if got := New(nil).View(80, 24); got != "" {
		t.Errorf("expected empty view, got %q", got)
	}
}

func TestSummaryScreen_EnterQuits(t *testing.T) {
	s := New(testSummary())
	_, cmd := s.Update(tea.KeyPressMsg{Code: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected a command on Enter")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected Enter to quit")
	}
}

func TestSummaryScreen_KeyHints(t *testing.T) {
	s := New(testSummary())
	hints := s.KeyHints()
	if len(hints) != 2 {
		t.Errorf("KeyHints length = %d, want 2", len(hints))
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00"},
		{95 * time.Second, "1:35"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
