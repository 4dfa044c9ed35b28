package chat

import (
	"time"

	"github.com/abhisek/autodidact/internal/session"
)

// turnDoneMsg is sent when a learner turn has been processed.
type turnDoneMsg struct {
	Input  string
	Result *session.TurnResult
	Err    error
}

// summaryReadyMsg is sent when the summary of a completed session is loaded.
type summaryReadyMsg struct {
	Summary *session.Summary
	Err     error
}

// saveDoneMsg reports one RetrySave attempt for a completed session.
type saveDoneMsg struct {
	Attempt int
	Err     error
}

// saveRetryMsg starts the next RetrySave attempt once its wait is over.
type saveRetryMsg struct {
	Attempt int
}

// spinnerTickMsg animates the thinking indicator while a turn runs.
type spinnerTickMsg time.Time
