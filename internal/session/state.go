package session

import (
	"time"

	"github.com/abhisek/autodidact/internal/objectives"
)

// Phase is the session lifecycle stage. Phases only move forward.
type Phase string

const (
	PhaseIntro     Phase = "intro"
	PhaseTeaching  Phase = "teaching"
	PhaseRecap     Phase = "recap"
	PhaseCompleted Phase = "completed"
)

func (p Phase) rank() int {
	switch p {
	case PhaseIntro:
		return 0
	case PhaseTeaching:
		return 1
	case PhaseRecap:
		return 2
	case PhaseCompleted:
		return 3
	}
	return -1
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool { return p.rank() >= 0 }

// Role identifies who produced a transcript entry.
type Role string

const (
	RoleLearner Role = "learner"
	RoleTutor   Role = "tutor"
)

// TranscriptEntry is one message of the conversation.
type TranscriptEntry struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Completion records how and when a session finished.
type Completion struct {
	CompletedAt time.Time `json:"completed_at"`
	// Forced is true when an operator command ended the session.
	Forced bool `json:"forced"`
	// Score is the mean objective score.
	Score              float64 `json:"score"`
	AssessedObjectives int     `json:"assessed_objectives"`
	ForcedObjectives   int     `json:"forced_objectives"`
}

// State is the persisted state of one tutoring session.
type State struct {
	SessionID string `json:"session_id"`
	LearnerID string `json:"learner_id"`
	NodeID    string `json:"node_id,omitempty"`
	NodeTitle string `json:"node_title"`
	Topic     string `json:"topic,omitempty"`
	Phase     Phase  `json:"phase"`

	Objectives            []objectives.Objective `json:"objectives"`
	CurrentObjectiveIndex int                    `json:"current_objective_index"`

	Transcript    []TranscriptEntry `json:"transcript"`
	LastMessageAt time.Time         `json:"last_message_at"`

	InterruptionDetected bool          `json:"interruption_detected"`
	InterruptionDuration time.Duration `json:"interruption_duration"`
	// InterruptionPending is true until the next model prompt has carried
	// the interruption context.
	InterruptionPending bool `json:"interruption_pending,omitempty"`

	DebugMode       bool        `json:"debug_mode"`
	ProfilesUpdated bool        `json:"profiles_updated"`
	Completion      *Completion `json:"completion,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// Version increments on every saved mutation.
	Version int `json:"version"`
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	c := *s
	if s.Objectives != nil {
		c.Objectives = make([]objectives.Objective, len(s.Objectives))
		for i, o := range s.Objectives {
			if o.CompletedAt != nil {
				at := *o.CompletedAt
				o.CompletedAt = &at
			}
			c.Objectives[i] = o
		}
	}
	if s.Transcript != nil {
		c.Transcript = make([]TranscriptEntry, len(s.Transcript))
		copy(c.Transcript, s.Transcript)
	}
	if s.Completion != nil {
		comp := *s.Completion
		c.Completion = &comp
	}
	return &c
}

// Tracker rebuilds the objective tracker for s.
func (s *State) Tracker() (*objectives.Tracker, error) {
	return objectives.Restore(s.Objectives, s.CurrentObjectiveIndex)
}

// Progress reports objective completion for s.
func (s *State) Progress() objectives.Progress {
	t, err := s.Tracker()
	if err != nil {
		return objectives.Progress{Total: len(s.Objectives)}
	}
	return t.Progress()
}

// Completed reports whether the session has reached its terminal phase.
func (s *State) Completed() bool { return s.Phase == PhaseCompleted }

// LastTutorText returns the most recent tutor message, or "".
func (s *State) LastTutorText() string {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if s.Transcript[i].Role == RoleTutor {
			return s.Transcript[i].Text
		}
	}
	return ""
}

func (s *State) appendEntry(role Role, text string, at time.Time) {
	s.Transcript = append(s.Transcript, TranscriptEntry{Role: role, Text: text, Timestamp: at.UTC()})
	s.LastMessageAt = at.UTC()
}
