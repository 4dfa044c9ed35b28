package components

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/autodidact/internal/ui/theme"
)

// ProgressBar displays objective progress as a horizontal bar with a
// "completed/total" counter.
type ProgressBar struct {
	Label     string
	Completed int
	Total     int
	Width     int
}

// NewProgressBar creates a new progress bar.
func NewProgressBar(label string, completed, total, width int) ProgressBar {
	return ProgressBar{
		Label:     label,
		Completed: completed,
		Total:     total,
		Width:     width,
	}
}

// Ratio returns the completed fraction in [0, 1]. An empty list counts
// as done.
func (p ProgressBar) Ratio() float64 {
	if p.Total <= 0 {
		return 1
	}
	r := float64(p.Completed) / float64(p.Total)
	return min(max(r, 0), 1)
}

// View renders the progress bar.
func (p ProgressBar) View() string {
	var result string

	if p.Label != "" {
		result += lipgloss.NewStyle().Foreground(theme.Text).Render(p.Label) + "  "
	}

	counter := fmt.Sprintf("  %d/%d", p.Completed, p.Total)
	barWidth := p.Width - lipgloss.Width(result) - len(counter)
	if barWidth < 4 {
		barWidth = 4
	}

	filled := int(float64(barWidth) * p.Ratio())
	result += theme.ProgressFilled.Render(strings.Repeat(" ", filled))
	result += theme.ProgressEmpty.Render(strings.Repeat(" ", barWidth-filled))
	result += lipgloss.NewStyle().Foreground(theme.TextDim).Render(counter)

	return result
}
