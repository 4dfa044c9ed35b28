package router

import (
	"testing"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/autodidact/internal/screen"
)

// fakeScreen counts Init and Update calls and echoes its name as the view.
type fakeScreen struct {
	name    string
	inits   int
	updates int
}

func (s *fakeScreen) Init() tea.Cmd {
	s.inits++
	return nil
}

func (s *fakeScreen) Update(tea.Msg) (screen.Screen, tea.Cmd) {
	s.updates++
	return s, nil
}

func (s *fakeScreen) View(int, int) string { return s.name }
func (s *fakeScreen) Title() string        { return s.name }

func TestNavigationMessages(t *testing.T) {
	chat := &fakeScreen{name: "chat"}
	summary := &fakeScreen{name: "summary"}
	final := &fakeScreen{name: "final summary"}

	tests := []struct {
		name      string
		msg       tea.Msg
		wantTop   string
		wantDepth int
	}{
		{"push summary", PushScreenMsg{Screen: summary}, "summary", 2},
		{"replace top", ReplaceScreenMsg{Screen: final}, "final summary", 2},
		{"pop back to chat", PopScreenMsg{}, "chat", 1},
		{"pop at root is a no-op", PopScreenMsg{}, "chat", 1},
	}

	r := New(chat)
	for _, tt := range tests {
		r.Update(tt.msg)
		if got := r.Active().Title(); got != tt.wantTop {
			t.Fatalf("%s: active = %q, want %q", tt.name, got, tt.wantTop)
		}
		if r.Depth() != tt.wantDepth {
			t.Fatalf("%s: depth = %d, want %d", tt.name, r.Depth(), tt.wantDepth)
		}
	}

	if summary.inits != 1 || final.inits != 1 {
		t.Errorf("Init calls: summary=%d final=%d, want 1 each", summary.inits, final.inits)
	}
	if chat.inits != 0 {
		t.Errorf("root screen Init is the app's job, got %d calls", chat.inits)
	}
}

func TestReplaceRoot(t *testing.T) {
	chat := &fakeScreen{name: "chat"}
	summary := &fakeScreen{name: "summary"}
	r := New(chat)

	r.Replace(summary)

	if r.Depth() != 1 || r.Active() != screen.Screen(summary) {
		t.Fatalf("expected summary as the only screen, depth %d", r.Depth())
	}
	if got := r.View(80, 24); got != "summary" {
		t.Errorf("View = %q", got)
	}
}

func TestUpdateForwardsToActiveOnly(t *testing.T) {
	chat := &fakeScreen{name: "chat"}
	summary := &fakeScreen{name: "summary"}
	r := New(chat)
	r.Push(summary)

	r.Update(tea.KeyPressMsg{Code: 'a', Text: "a"})

	if summary.updates != 1 || chat.updates != 0 {
		t.Errorf("updates: summary=%d chat=%d", summary.updates, chat.updates)
	}
}
