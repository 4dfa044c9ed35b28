package session

import (
	"errors"
	"fmt"

	"github.com/abhisek/autodidact/internal/llm"
)

// LearnerErrorMessage is the only failure text shown to learners.
const LearnerErrorMessage = "Sorry, I couldn't respond just now. Please try again in a moment."

var (
	// ErrSessionNotFound is returned when no session exists for an id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionCompleted is returned for learner turns on a completed session.
	ErrSessionCompleted = errors.New("session already completed")

	// ErrInvariant is returned when a transition would break a state invariant.
	ErrInvariant = errors.New("session invariant violated")
)

// TurnError reports a failed model invocation. The session state is left
// exactly as it was before the turn.
type TurnError struct {
	Kind      llm.ErrorKind
	Retryable bool
	Err       error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("tutor turn failed (%s): %v", e.Kind, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

// LearnerMessage returns the neutral text to show the learner.
func (e *TurnError) LearnerMessage() string { return LearnerErrorMessage }

// PersistError reports that a mutated state could not be written. The
// engine keeps the new state in memory; RetrySave re-attempts the write.
type PersistError struct {
	SessionID string
	Version   int
	Err       error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("save session %s (version %d): %v", e.SessionID, e.Version, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

func newTurnError(err error) *TurnError {
	kind, retryable := llm.Classify(err)
	return &TurnError{Kind: kind, Retryable: retryable, Err: err}
}
