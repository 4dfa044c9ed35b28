package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/abhisek/autodidact/internal/llm"
	"github.com/abhisek/autodidact/internal/profile"
	"github.com/abhisek/autodidact/internal/store"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// memStore is a Store that round-trips through the stored encoding and can
// be told to fail saves.
type memStore struct {
	mu        sync.Mutex
	data      map[string][]byte
	failSaves int
	saves     int
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) Load(_ context.Context, id string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return Decode(raw)
}

func (m *memStore) Save(_ context.Context, s *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSaves > 0 {
		m.failSaves--
		return errors.New("disk full")
	}
	raw, err := Encode(s)
	if err != nil {
		return err
	}
	m.data[s.SessionID] = raw
	m.saves++
	return nil
}

func (m *memStore) stored(t *testing.T, id string) *State {
	t.Helper()
	s, err := m.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("load stored %s: %v", id, err)
	}
	return s
}

type eventLog struct {
	mu     sync.Mutex
	events []store.SessionEventData
}

func (l *eventLog) AppendSessionEvent(_ context.Context, data store.SessionEventData) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, data)
	return nil
}

func (l *eventLog) kinds(kind string) []store.SessionEventData {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []store.SessionEventData
	for _, e := range l.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type fakeProfiles struct {
	mu         sync.Mutex
	narrative  string
	updates    int
	transcript []profile.Line
	err        error
}

func (f *fakeProfiles) Narrative(context.Context, string, string) (string, error) {
	return f.narrative, nil
}

func (f *fakeProfiles) Update(_ context.Context, _, _ string, transcript []profile.Line) (profile.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	f.transcript = transcript
	return profile.Outcome{}, f.err
}

type harness struct {
	engine   *Engine
	store    *memStore
	mock     *llm.MockProvider
	events   *eventLog
	profiles *fakeProfiles
	clock    *testClock
}

func newHarness(t *testing.T, replies ...llm.MockResponse) *harness {
	t.Helper()
	h := &harness{
		store:    newMemStore(),
		mock:     llm.NewMockProvider(replies...),
		events:   &eventLog{},
		profiles: &fakeProfiles{},
		clock:    &testClock{t: t0},
	}
	h.engine = New(Deps{
		Store:    h.store,
		Provider: h.mock,
		Profiles: h.profiles,
		Events:   h.events,
		Clock:    h.clock.Now,
	}, DefaultConfig())
	return h
}

func (h *harness) start(t *testing.T, objs ...string) *State {
	t.Helper()
	s, err := h.engine.Start(context.Background(), StartInput{
		SessionID:  "s-1",
		LearnerID:  "ada",
		NodeTitle:  "Linear functions",
		Objectives: objs,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return s
}

func (h *harness) turn(t *testing.T, input string) *TurnResult {
	t.Helper()
	res, err := h.engine.Turn(context.Background(), "s-1", input)
	if err != nil {
		t.Fatalf("Turn(%q): %v", input, err)
	}
	return res
}
