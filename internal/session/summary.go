package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/abhisek/autodidact/internal/interruption"
	"github.com/abhisek/autodidact/internal/objectives"
)

// NextObjectivePrefix starts the tutor notice appended when one objective
// completes and another remains.
const NextObjectivePrefix = "Let's move to the next objective:"

// Summary holds the data displayed when a session ends or is inspected.
type Summary struct {
	SessionID  string
	NodeTitle  string
	Phase      Phase
	Objectives []objectives.Objective
	Progress   objectives.Progress
	Percent    int
	StartedAt  time.Time
	EndedAt    time.Time
	Duration   time.Duration
	Messages   int
	Completion *Completion
}

// BuildSummary creates a Summary from the current session state.
func BuildSummary(s *State) *Summary {
	p := s.Progress()
	sum := &Summary{
		SessionID:  s.SessionID,
		NodeTitle:  s.NodeTitle,
		Phase:      s.Phase,
		Objectives: s.Clone().Objectives,
		Progress:   p,
		Percent:    p.Percent(),
		StartedAt:  s.CreatedAt,
		EndedAt:    s.UpdatedAt,
		Messages:   len(s.Transcript),
	}
	if s.Completion != nil {
		c := *s.Completion
		sum.Completion = &c
		sum.EndedAt = c.CompletedAt
	}
	if !sum.StartedAt.IsZero() && sum.EndedAt.After(sum.StartedAt) {
		sum.Duration = sum.EndedAt.Sub(sum.StartedAt)
	}
	return sum
}

// completionFor scores a finished tracker.
func completionFor(t *objectives.Tracker, at time.Time, forced bool) *Completion {
	c := &Completion{CompletedAt: at.UTC(), Forced: forced}
	objs := t.Objectives()
	var total float64
	for _, o := range objs {
		total += o.Score
		if o.Provenance == objectives.ProvenanceForced {
			c.ForcedObjectives++
		} else {
			c.AssessedObjectives++
		}
	}
	switch {
	case len(objs) > 0:
		c.Score = total / float64(len(objs))
	case forced:
		c.Score = objectives.ForcedScore
	default:
		c.Score = objectives.AssessedScore
	}
	return c
}

func introText(s *State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Welcome to **%s**!\n\n", s.NodeTitle)
	if len(s.Objectives) == 0 {
		b.WriteString("There are no specific objectives for this session, so we'll review the topic together.\n\n")
		b.WriteString("Say hello whenever you're ready to begin.")
		return b.String()
	}
	b.WriteString("In this session we'll work through these objectives:\n\n")
	for i, o := range s.Objectives {
		fmt.Fprintf(&b, "%d. %s\n", i+1, o.Description)
	}
	fmt.Fprintf(&b, "\nWe'll start with the first one: %s\n\nSay hello whenever you're ready to begin.", s.Objectives[0].Description)
	return b.String()
}

func transitionNotice(next objectives.Objective) string {
	return NextObjectivePrefix + " " + next.Description
}

// resumptionText welcomes a learner back after an interruption.
func resumptionText(s *State, gap time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Welcome back to **%s**! You've been away for about %s.\n", s.NodeTitle, interruption.FormatGap(gap))

	var done, remaining []string
	for i, o := range s.Objectives {
		switch {
		case o.Status == objectives.StatusCompleted:
			done = append(done, o.Description)
		case i > s.CurrentObjectiveIndex:
			remaining = append(remaining, o.Description)
		}
	}

	if len(done) > 0 {
		b.WriteString("\nSo far we've covered:\n")
		for _, d := range done {
			fmt.Fprintf(&b, "- [x] %s\n", d)
		}
	}
	if s.CurrentObjectiveIndex < len(s.Objectives) {
		fmt.Fprintf(&b, "\nWe were working on: %s\n", s.Objectives[s.CurrentObjectiveIndex].Description)
	} else {
		b.WriteString("\nWe were wrapping up with a recap.\n")
	}
	if len(remaining) > 0 {
		b.WriteString("\nStill to go:\n")
		for _, r := range remaining {
			fmt.Fprintf(&b, "- [ ] %s\n", r)
		}
	}
	b.WriteString("\nReady to pick up where we left off?")
	return b.String()
}

func statusText(s *State) string {
	p := s.Progress()
	var b strings.Builder
	fmt.Fprintf(&b, "Session %s\n", s.SessionID)
	fmt.Fprintf(&b, "Lesson: %s\n", s.NodeTitle)
	fmt.Fprintf(&b, "Phase: %s\n", s.Phase)
	fmt.Fprintf(&b, "Objectives: %d/%d completed (%d%%)", p.Completed, p.Total, p.Percent())
	if p.Forced > 0 {
		fmt.Fprintf(&b, ", %d forced", p.Forced)
	}
	b.WriteString("\n")
	if s.CurrentObjectiveIndex < len(s.Objectives) {
		fmt.Fprintf(&b, "Current: %s\n", s.Objectives[s.CurrentObjectiveIndex].Description)
	}
	fmt.Fprintf(&b, "Messages: %d\n", len(s.Transcript))
	fmt.Fprintf(&b, "Verbose mode: %t", s.DebugMode)
	return b.String()
}
