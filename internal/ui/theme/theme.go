package theme

import (
	"charm.land/lipgloss/v2"
)

// Color palette: calm on dark backgrounds, one accent per speaker.
var (
	Primary   = lipgloss.Color("#8B5CF6") // Purple, tutor
	Secondary = lipgloss.Color("#14B8A6") // Teal, learner and progress
	Accent    = lipgloss.Color("#F59E0B") // Amber, notices
	Success   = lipgloss.Color("#22C55E") // Green
	Error     = lipgloss.Color("#F43F5E") // Rose
	Text      = lipgloss.Color("#F8FAFC") // White
	TextDim   = lipgloss.Color("#94A3B8") // Slate
	BgDark    = lipgloss.Color("#0F172A") // Deep Navy
	BgCard    = lipgloss.Color("#1E293B") // Dark Slate
	Border    = lipgloss.Color("#334155") // Slate
)

// Typography
var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary).
		Align(lipgloss.Center)

	Subtitle = lipgloss.NewStyle().
			Foreground(TextDim).
			Align(lipgloss.Center)

	Body = lipgloss.NewStyle().
		Foreground(Text)

	Hint = lipgloss.NewStyle().
		Foreground(TextDim).
		Italic(true)
)

// Layout
var (
	Header = lipgloss.NewStyle().
		Background(BgCard).
		Padding(0, 2)

	Footer = lipgloss.NewStyle().
		Background(BgCard).
		Padding(0, 2)

	Divider = lipgloss.NewStyle().
		Foreground(Border)
)

// Conversation
var (
	TutorLabel = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)

	LearnerLabel = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	LearnerText = lipgloss.NewStyle().
			Foreground(Text).
			PaddingLeft(2)

	// Banner is the neutral notice shown when a turn fails.
	Banner = lipgloss.NewStyle().
		Foreground(Accent).
		Bold(true)

	Thinking = lipgloss.NewStyle().
			Foreground(TextDim).
			Italic(true)
)

// Objectives
var (
	ObjectiveDone = lipgloss.NewStyle().
			Foreground(Success)

	ObjectiveCurrent = lipgloss.NewStyle().
				Foreground(Primary).
				Bold(true)

	ObjectivePending = lipgloss.NewStyle().
				Foreground(TextDim)

	ProgressFilled = lipgloss.NewStyle().
			Background(Secondary)

	ProgressEmpty = lipgloss.NewStyle().
			Background(Border)
)
