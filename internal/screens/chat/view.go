package chat

import (
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/autodidact/internal/session"
	"github.com/abhisek/autodidact/internal/ui/components"
	"github.com/abhisek/autodidact/internal/ui/layout"
	"github.com/abhisek/autodidact/internal/ui/markdown"
	"github.com/abhisek/autodidact/internal/ui/theme"
)

var thinkingFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// View renders the objective bar, the transcript, a status line and the
// prompt. It also sizes the viewport, since the router only reports the
// content area at render time.
func (s *ChatScreen) View(width, height int) string {
	compact := layout.IsCompactHeight(height)
	chrome := 5
	if !compact {
		chrome++
	}
	s.resize(width, height-chrome)

	divider := theme.Divider.Render(strings.Repeat("─", max(width-4, 0)))

	var b strings.Builder
	p := s.state.Progress()
	bar := components.NewProgressBar("Objectives", p.Completed, p.Total, min(width-4, 80))
	b.WriteString("  " + bar.View() + "\n")
	if !compact {
		b.WriteString("  " + s.currentObjectiveLine(width-4) + "\n")
	}
	b.WriteString("  " + divider + "\n")
	b.WriteString(s.viewport.View() + "\n")
	b.WriteString("  " + divider + "\n")
	b.WriteString("  " + s.statusLine() + "\n")
	b.WriteString("  " + s.input.View())
	return b.String()
}

func (s *ChatScreen) resize(width, vpHeight int) {
	if vpHeight < 1 {
		vpHeight = 1
	}
	wrap := layout.ReadableWidth(width)
	if s.renderer == nil || s.renderer.Width() != wrap {
		s.renderer = markdown.New(wrap)
		s.dirty = true
	}
	if width != s.width || vpHeight != s.height {
		s.width, s.height = width, vpHeight
		s.viewport.SetWidth(width)
		s.viewport.SetHeight(vpHeight)
		s.dirty = true
	}
	if s.dirty {
		s.viewport.SetContent(s.renderTranscript(wrap))
		s.viewport.GotoBottom()
		s.dirty = false
	}
}

func (s *ChatScreen) renderTranscript(wrap int) string {
	parts := make([]string, 0, len(s.entries))
	for i := range s.entries {
		e := &s.entries[i]
		if e.renderedWidth != wrap {
			e.rendered = s.renderEntry(*e, wrap)
			e.renderedWidth = wrap
		}
		parts = append(parts, e.rendered)
	}
	return strings.Join(parts, "\n\n")
}

func (s *ChatScreen) renderEntry(e entry, wrap int) string {
	if e.role == session.RoleLearner {
		return "  " + theme.LearnerLabel.Render("You") + "\n" +
			theme.LearnerText.Width(wrap).Render(e.text)
	}

	var body string
	if e.plain {
		body = lipgloss.NewStyle().Foreground(theme.Text).PaddingLeft(2).Width(wrap).Render(e.text)
	} else {
		body = s.renderer.Render(e.text)
	}
	return "  " + theme.TutorLabel.Render("Tutor") + "\n" + body
}

func (s *ChatScreen) currentObjectiveLine(width int) string {
	var text string
	switch {
	case s.state.Completed():
		text = "Session complete"
	case s.state.Phase == session.PhaseRecap:
		text = "Recap of everything covered"
	default:
		idx := s.state.CurrentObjectiveIndex
		if idx >= 0 && idx < len(s.state.Objectives) {
			text = "Now: " + s.state.Objectives[idx].Description
		}
	}
	return theme.ObjectiveCurrent.Render(layout.Truncate(text, width))
}

func (s *ChatScreen) statusLine() string {
	switch {
	case s.busy:
		return theme.Thinking.Render("Tutor is thinking " + thinkingFrames[s.frame%len(thinkingFrames)])
	case s.banner != "":
		return theme.Banner.Render(s.banner)
	case s.notice != "":
		return theme.Hint.Render(s.notice)
	case s.ended:
		return theme.Hint.Render("Session complete. Press Enter for the summary.")
	}
	return theme.Hint.Render("/status  /next  /completed  /help")
}
