// Package chat is the conversation screen of a tutoring session.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/autodidact/internal/router"
	"github.com/abhisek/autodidact/internal/screen"
	"github.com/abhisek/autodidact/internal/screens/summary"
	"github.com/abhisek/autodidact/internal/session"
	"github.com/abhisek/autodidact/internal/ui/components"
	"github.com/abhisek/autodidact/internal/ui/layout"
	"github.com/abhisek/autodidact/internal/ui/markdown"
)

// Engine is the part of the session engine the chat screen drives.
type Engine interface {
	Turn(ctx context.Context, id, input string) (*session.TurnResult, error)
	Summary(ctx context.Context, id string) (*session.Summary, error)
	RetrySave(ctx context.Context, id string) error
}

// saveRetryWaits are the pauses before each RetrySave attempt on a
// completion whose save failed. The first attempt runs at once.
var saveRetryWaits = []time.Duration{0, time.Second, 2 * time.Second, 4 * time.Second}

// entry is one displayed message. Command replies are shown verbatim;
// tutor prose is rendered as markdown and cached per wrap width.
type entry struct {
	role          session.Role
	text          string
	plain         bool
	rendered      string
	renderedWidth int
}

// ChatScreen implements screen.Screen for a running session.
type ChatScreen struct {
	engine   Engine
	state    *session.State
	entries  []entry
	input    components.TextInput
	viewport viewport.Model
	renderer *markdown.Renderer

	busy  bool
	frame int
	// banner is the neutral failure notice; pending is the input to resend
	// when the learner presses Enter on an empty prompt.
	banner  string
	pending string
	notice  string
	ended   bool
	// unsaved marks an ended session whose completion is not stored yet;
	// saving is set while a RetrySave attempt is in flight.
	unsaved bool
	saving  bool
	// openedCompleted marks a session that was already over when the
	// screen was created; its summary replaces the chat.
	openedCompleted bool

	width, height int
	dirty         bool
}

var _ screen.Screen = (*ChatScreen)(nil)
var _ screen.KeyHintProvider = (*ChatScreen)(nil)
var _ screen.StatusProvider = (*ChatScreen)(nil)

// New creates a ChatScreen for state, showing its transcript so far.
func New(engine Engine, state *session.State) *ChatScreen {
	s := &ChatScreen{
		engine:          engine,
		state:           state,
		input:           components.NewTextInput("Type your reply, or /help for commands", 4000),
		viewport:        viewport.New(),
		ended:           state.Completed(),
		openedCompleted: state.Completed(),
		dirty:           true,
	}
	for _, t := range state.Transcript {
		s.entries = append(s.entries, entry{role: t.Role, text: t.Text})
	}
	return s
}

func (s *ChatScreen) Init() tea.Cmd {
	if s.openedCompleted {
		return s.loadSummary()
	}
	return s.input.Init()
}

func (s *ChatScreen) Title() string {
	return s.state.NodeTitle
}

// Status reports objective progress for the header.
func (s *ChatScreen) Status() string {
	p := s.state.Progress()
	return fmt.Sprintf("%d/%d objectives  %s  ", p.Completed, p.Total, s.state.Phase)
}

func (s *ChatScreen) KeyHints() []layout.KeyHint {
	switch {
	case s.busy:
		return []layout.KeyHint{
			{Key: "PgUp/PgDn", Description: "Scroll"},
			{Key: "Ctrl+C", Description: "Quit"},
		}
	case s.ended && s.unsaved:
		return []layout.KeyHint{
			{Key: "Enter", Description: "Save"},
			{Key: "Ctrl+C", Description: "Quit"},
		}
	case s.ended:
		return []layout.KeyHint{
			{Key: "Enter", Description: "Summary"},
			{Key: "Ctrl+C", Description: "Quit"},
		}
	case s.pending != "":
		return []layout.KeyHint{
			{Key: "Enter", Description: "Retry"},
			{Key: "PgUp/PgDn", Description: "Scroll"},
			{Key: "Ctrl+C", Description: "Quit"},
		}
	}
	return []layout.KeyHint{
		{Key: "Enter", Description: "Send"},
		{Key: "PgUp/PgDn", Description: "Scroll"},
		{Key: "Ctrl+C", Description: "Quit"},
	}
}

func (s *ChatScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case turnDoneMsg:
		return s.handleTurnDone(msg)

	case summaryReadyMsg:
		return s.handleSummary(msg)

	case saveDoneMsg:
		return s.handleSaveDone(msg)

	case saveRetryMsg:
		return s, s.retrySave(msg.Attempt)

	case spinnerTickMsg:
		if !s.busy {
			return s, nil
		}
		s.frame++
		return s, spinnerTick()

	case tea.KeyMsg:
		return s.handleKey(msg)
	}

	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)
	return s, cmd
}

func (s *ChatScreen) handleKey(msg tea.KeyMsg) (screen.Screen, tea.Cmd) {
	switch msg.String() {
	case "enter":
		return s.submit()
	case "pgup", "pgdown", "up", "down":
		var cmd tea.Cmd
		s.viewport, cmd = s.viewport.Update(msg)
		return s, cmd
	}

	if s.busy || s.ended {
		return s, nil
	}
	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)
	return s, cmd
}

// submit sends the typed input, or resends the failed one when the prompt
// is empty.
func (s *ChatScreen) submit() (screen.Screen, tea.Cmd) {
	if s.busy {
		return s, nil
	}
	if s.ended {
		if s.unsaved {
			if s.saving {
				return s, nil
			}
			s.banner = ""
			return s, s.retrySave(0)
		}
		return s, s.loadSummary()
	}

	text := s.input.Value()
	retry := text == "" && s.pending != ""
	if retry {
		text = s.pending
	}
	if text == "" {
		return s, nil
	}

	s.input.Reset()
	s.banner, s.notice = "", ""
	s.busy = true
	s.frame = 0
	if !retry {
		s.appendEntry(entry{role: session.RoleLearner, text: text, plain: true})
	}
	return s, tea.Batch(s.runTurn(text), spinnerTick())
}

func (s *ChatScreen) runTurn(input string) tea.Cmd {
	engine, id := s.engine, s.state.SessionID
	return func() tea.Msg {
		res, err := engine.Turn(context.Background(), id, input)
		return turnDoneMsg{Input: input, Result: res, Err: err}
	}
}

func (s *ChatScreen) handleTurnDone(msg turnDoneMsg) (screen.Screen, tea.Cmd) {
	s.busy = false

	var pe *session.PersistError
	switch {
	case msg.Err == nil:
	case errors.As(msg.Err, &pe) && msg.Result != nil && msg.Result.Completed:
		s.unsaved = true
		s.notice = "Saving your finished session..."
	case errors.As(msg.Err, &pe) && msg.Result != nil:
		s.notice = "Your progress is not saved yet. It will be saved with your next message."
	case errors.Is(msg.Err, session.ErrSessionCompleted):
		s.ended = true
		return s, s.loadSummary()
	default:
		// Every other failure reads the same to the learner.
		s.pending = msg.Input
		s.banner = session.LearnerErrorMessage + " Press Enter to retry."
		return s, nil
	}

	s.pending = ""
	res := msg.Result
	if res.State != nil {
		s.state = res.State
	}
	plain := res.Command != ""
	if res.Reply != "" {
		s.appendEntry(entry{role: session.RoleTutor, text: res.Reply, plain: plain})
	}
	for _, n := range res.Notices {
		s.appendEntry(entry{role: session.RoleTutor, text: n})
	}

	if res.Completed || s.state.Completed() {
		s.ended = true
		if s.unsaved {
			return s, s.retrySave(0)
		}
		return s, s.loadSummary()
	}
	return s, nil
}

// retrySave runs one RetrySave attempt for an unsaved completion.
func (s *ChatScreen) retrySave(attempt int) tea.Cmd {
	s.saving = true
	engine, id := s.engine, s.state.SessionID
	return func() tea.Msg {
		return saveDoneMsg{Attempt: attempt, Err: engine.RetrySave(context.Background(), id)}
	}
}

func (s *ChatScreen) handleSaveDone(msg saveDoneMsg) (screen.Screen, tea.Cmd) {
	if msg.Err == nil {
		s.unsaved, s.saving = false, false
		s.notice = ""
		return s, s.loadSummary()
	}
	if next := msg.Attempt + 1; next < len(saveRetryWaits) {
		return s, tea.Tick(saveRetryWaits[next], func(time.Time) tea.Msg {
			return saveRetryMsg{Attempt: next}
		})
	}
	s.saving = false
	s.notice = ""
	s.banner = "Your finished session could not be saved. Press Enter to try again."
	return s, nil
}

func (s *ChatScreen) loadSummary() tea.Cmd {
	engine, id := s.engine, s.state.SessionID
	return func() tea.Msg {
		sum, err := engine.Summary(context.Background(), id)
		return summaryReadyMsg{Summary: sum, Err: err}
	}
}

func (s *ChatScreen) handleSummary(msg summaryReadyMsg) (screen.Screen, tea.Cmd) {
	if msg.Err != nil {
		s.banner = "The session summary could not be loaded."
		return s, nil
	}
	next := summary.New(msg.Summary)
	if s.openedCompleted {
		return s, func() tea.Msg { return router.ReplaceScreenMsg{Screen: next} }
	}
	return s, func() tea.Msg { return router.PushScreenMsg{Screen: next} }
}

func (s *ChatScreen) appendEntry(e entry) {
	s.entries = append(s.entries, e)
	s.dirty = true
}

func spinnerTick() tea.Cmd {
	return tea.Tick(120*time.Millisecond, func(t time.Time) tea.Msg {
		return spinnerTickMsg(t)
	})
}
