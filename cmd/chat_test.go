package cmd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/autodidact/internal/llm"
	"github.com/abhisek/autodidact/internal/session"
)

const objectiveDone = `Exactly right! <control>{"objective_complete": true}</control>`

// flakyStore fails the save attempts whose 1-based number is in fail.
type flakyStore struct {
	mu       sync.Mutex
	data     map[string]*session.State
	fail     map[int]bool
	attempts int
}

func (f *flakyStore) Load(_ context.Context, id string) (*session.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.data[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (f *flakyStore) Save(_ context.Context, s *session.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.fail[f.attempts] {
		return errors.New("database is locked")
	}
	f.data[s.SessionID] = s.Clone()
	return nil
}

func newTestChat(t *testing.T, fail map[int]bool, input string, replies ...llm.MockResponse) (*chatLoop, *flakyStore, *llm.MockProvider, *bytes.Buffer, *opened) {
	t.Helper()

	waits := saveRetryWaits
	saveRetryWaits = []time.Duration{0, 0}
	t.Cleanup(func() { saveRetryWaits = waits })

	st := &flakyStore{data: make(map[string]*session.State), fail: fail}
	mock := llm.NewMockProvider(replies...)
	engine := session.New(session.Deps{Store: st, Provider: mock}, session.DefaultConfig())

	s, err := engine.Start(context.Background(), session.StartInput{
		SessionID: "chat-1",
		NodeTitle: "Fractions",
		Objectives: []string{
			"Add fractions with like denominators",
		},
	})
	require.NoError(t, err)

	out := &bytes.Buffer{}
	c := &chatLoop{
		engine: engine,
		id:     s.SessionID,
		in:     bufio.NewScanner(strings.NewReader(input)),
		out:    out,
		render: func(s string) string { return s },
	}
	return c, st, mock, out, &opened{State: s, Greeting: "Welcome."}
}

func TestChatLoop_CompletionSaveIsRetried(t *testing.T) {
	// Save 1 is Start, save 2 the first turn, save 3 the completing turn.
	c, st, _, out, o := newTestChat(t, map[int]bool{3: true},
		"I know this\ndone\n",
		llm.TextResponse(objectiveDone),
		llm.TextResponse(objectiveDone),
	)

	require.NoError(t, c.run(context.Background(), o))

	stored, err := st.Load(context.Background(), "chat-1")
	require.NoError(t, err)
	assert.Equal(t, session.PhaseCompleted, stored.Phase)
	assert.Contains(t, out.String(), "Progress:")
	assert.NotContains(t, out.String(), "could not be saved")
}

func TestChatLoop_CompletionSaveKeepsFailing(t *testing.T) {
	c, st, _, out, o := newTestChat(t, map[int]bool{3: true, 4: true, 5: true},
		"I know this\ndone\n\n",
		llm.TextResponse(objectiveDone),
		llm.TextResponse(objectiveDone),
	)

	require.NoError(t, c.run(context.Background(), o))

	assert.Contains(t, out.String(), "the finished session could not be saved")
	// Enter re-sends the line, which flushes the completion and ends the chat.
	stored, err := st.Load(context.Background(), "chat-1")
	require.NoError(t, err)
	assert.Equal(t, session.PhaseCompleted, stored.Phase)
	assert.Contains(t, out.String(), "Progress:")
}

func TestChatLoop_UnsavedProgressBlocksTurnUntilRetry(t *testing.T) {
	// The first turn's save fails, then the flush before the second turn
	// fails too, so that turn returns no result.
	c, _, mock, out, o := newTestChat(t, map[int]bool{2: true, 3: true},
		"hi\nwhat is a denominator?\n\n/quit\n",
		llm.TextResponse("Let's start with halves."),
		llm.TextResponse("The bottom number."),
	)

	require.NoError(t, c.run(context.Background(), o))

	text := out.String()
	assert.Contains(t, text, "progress not saved yet")
	assert.Contains(t, text, "could not save earlier progress")
	assert.Contains(t, text, "The bottom number.")
	assert.Equal(t, 2, mock.CallCount())
}
