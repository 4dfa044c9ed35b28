package summary

import (
	"fmt"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/autodidact/internal/objectives"
	"github.com/abhisek/autodidact/internal/screen"
	"github.com/abhisek/autodidact/internal/session"
	"github.com/abhisek/autodidact/internal/ui/layout"
	"github.com/abhisek/autodidact/internal/ui/theme"
)

// SummaryScreen displays the session summary.
type SummaryScreen struct {
	summary *session.Summary
}

var _ screen.Screen = (*SummaryScreen)(nil)
var _ screen.KeyHintProvider = (*SummaryScreen)(nil)

// New creates a new SummaryScreen.
func New(summary *session.Summary) *SummaryScreen {
	return &SummaryScreen{summary: summary}
}

func (s *SummaryScreen) Init() tea.Cmd {
	return nil
}

func (s *SummaryScreen) Title() string {
	return "Session Summary"
}

func (s *SummaryScreen) KeyHints() []layout.KeyHint {
	return []layout.KeyHint{
		{Key: "Enter", Description: "Quit"},
		{Key: "Esc", Description: "Transcript"},
	}
}

// Esc is handled by the app, which pops back to the transcript.
func (s *SummaryScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	if kmsg, ok := msg.(tea.KeyMsg); ok {
		switch kmsg.String() {
		case "enter", "q":
			return s, tea.Quit
		}
	}
	return s, nil
}

func (s *SummaryScreen) View(width, height int) string {
	sum := s.summary
	if sum == nil {
		return ""
	}

	center := func(style lipgloss.Style, text string) string {
		return lipgloss.PlaceHorizontal(width, lipgloss.Center, style.Render(text))
	}

	var b strings.Builder

	heading := "Session complete!"
	if sum.Completion == nil {
		heading = "Session in progress"
	}
	b.WriteString(center(theme.Title, heading))
	b.WriteString("\n")
	b.WriteString(center(theme.Body, sum.NodeTitle))
	b.WriteString("\n\n")

	b.WriteString(center(theme.Subtitle, fmt.Sprintf("Duration: %s    Messages: %d",
		formatDuration(sum.Duration), sum.Messages)))
	b.WriteString("\n\n")

	stats := fmt.Sprintf("Objectives: %d/%d        Completion: %d%%",
		sum.Progress.Completed, sum.Progress.Total, sum.Percent)
	if c := sum.Completion; c != nil {
		stats += fmt.Sprintf("        Score: %.0f%%", c.Score*100)
	}
	b.WriteString(center(theme.Body, stats))
	b.WriteString("\n")
	if c := sum.Completion; c != nil {
		how := "Assessed by the tutor"
		if c.Forced {
			how = "Finished early with /completed"
		}
		b.WriteString(center(theme.Subtitle, fmt.Sprintf("%s  (assessed %d, forced %d)",
			how, c.AssessedObjectives, c.ForcedObjectives)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(sum.Objectives) > 0 {
		divider := theme.Divider.Render(strings.Repeat("─", min(width-8, 60)))
		b.WriteString(center(theme.Subtitle, "Objectives"))
		b.WriteString("\n")
		b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center, divider))
		b.WriteString("\n\n")

		for _, o := range sum.Objectives {
			b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center, objectiveLine(o)))
			b.WriteString("\n")
		}
	}

	return b.String()
}

func objectiveLine(o objectives.Objective) string {
	switch o.Status {
	case objectives.StatusCompleted:
		detail := fmt.Sprintf("%s, %.0f%%", o.Provenance, o.Score*100)
		return theme.ObjectiveDone.Render("✓ "+o.Description) +
			theme.ObjectivePending.Render("  ("+detail+")")
	case objectives.StatusCurrent:
		return theme.ObjectiveCurrent.Render("> " + o.Description)
	default:
		return theme.ObjectivePending.Render("  " + o.Description)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}
