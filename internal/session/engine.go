// Package session runs tutoring sessions: it owns the phase state machine,
// routes operator commands, invokes the tutor model and persists every
// state change.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abhisek/autodidact/internal/control"
	"github.com/abhisek/autodidact/internal/interruption"
	"github.com/abhisek/autodidact/internal/llm"
	"github.com/abhisek/autodidact/internal/objectives"
	"github.com/abhisek/autodidact/internal/profile"
	"github.com/abhisek/autodidact/internal/store"
)

// Profiles supplies the learner narrative for prompts and runs the profile
// update once a session completes.
type Profiles interface {
	Narrative(ctx context.Context, learnerID, topic string) (string, error)
	Update(ctx context.Context, learnerID, topic string, transcript []profile.Line) (profile.Outcome, error)
}

// Config tunes the engine.
type Config struct {
	InterruptionThreshold time.Duration
	TranscriptWindow      int
	Policy                control.Policy
	MaxTokens             int
	Temperature           float64
	TurnTimeout           time.Duration
	ProfileTimeout        time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		InterruptionThreshold: interruption.DefaultThreshold,
		TranscriptWindow:      20,
		Policy:                control.FirstWins,
		MaxTokens:             1024,
		Temperature:           0.7,
		TurnTimeout:           90 * time.Second,
		ProfileTimeout:        2 * time.Minute,
	}
}

// Deps are the engine's collaborators. Store and Provider are required.
type Deps struct {
	Store    Store
	Provider llm.Provider
	Profiles Profiles
	Events   EventRecorder
	Logger   *zap.Logger
	Clock    func() time.Time
}

// Engine drives tutoring sessions.
type Engine struct {
	store    Store
	provider llm.Provider
	profiles Profiles
	events   EventRecorder
	logger   *zap.Logger
	now      func() time.Time
	cfg      Config

	locks sessionLocks

	mu sync.Mutex
	// unsaved holds states whose last write failed, by session id.
	unsaved map[string]*State
}

// New creates an Engine.
func New(deps Deps, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.InterruptionThreshold <= 0 {
		cfg.InterruptionThreshold = def.InterruptionThreshold
	}
	if cfg.TranscriptWindow <= 0 {
		cfg.TranscriptWindow = def.TranscriptWindow
	}
	if !cfg.Policy.Valid() {
		cfg.Policy = def.Policy
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = def.TurnTimeout
	}
	if cfg.ProfileTimeout <= 0 {
		cfg.ProfileTimeout = def.ProfileTimeout
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}

	return &Engine{
		store:    deps.Store,
		provider: deps.Provider,
		profiles: deps.Profiles,
		events:   deps.Events,
		logger:   logger.Named("session"),
		now:      now,
		cfg:      cfg,
		unsaved:  make(map[string]*State),
	}
}

// StartInput describes a new session.
type StartInput struct {
	// SessionID is optional; a UUID is generated when empty.
	SessionID  string
	LearnerID  string
	NodeID     string
	NodeTitle  string
	Topic      string
	Objectives []string
}

// TurnResult is the outcome of one learner input.
type TurnResult struct {
	// Reply is the text to show the learner.
	Reply string
	// Notices are extra tutor entries appended by this turn, such as the
	// next-objective notice.
	Notices []string
	State   *State
	// Command is set when the input was routed to the command channel.
	Command     string
	Transitions []string
	Anomalies   []string
	// Completed is true when this turn moved the session into completed.
	Completed bool
}

// ResumeResult is the outcome of reopening a session.
type ResumeResult struct {
	State       *State
	Interrupted bool
	Gap         time.Duration
	// Message is the resumption summary appended to the transcript, if any.
	Message string
	// Summary is set for completed sessions.
	Summary *Summary
}

// Start creates a session in the intro phase. The objective list becomes
// the first tutor message; no model call is made.
func (e *Engine) Start(ctx context.Context, in StartInput) (*State, error) {
	id := in.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	title := strings.TrimSpace(in.NodeTitle)
	if title == "" {
		title = strings.TrimSpace(in.Topic)
	}
	if title == "" {
		return nil, errors.New("session needs a title or topic")
	}

	unlock := e.locks.lock(id)
	defer unlock()

	if _, err := e.store.Load(ctx, id); err == nil {
		return nil, fmt.Errorf("session %s already exists", id)
	} else if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	now := e.now().UTC()
	tracker := objectives.New(in.Objectives)
	topic := strings.TrimSpace(in.Topic)
	if topic == "" {
		topic = title
	}
	s := &State{
		SessionID:             id,
		LearnerID:             in.LearnerID,
		NodeID:                in.NodeID,
		NodeTitle:             title,
		Topic:                 topic,
		Phase:                 PhaseIntro,
		Objectives:            tracker.Objectives(),
		CurrentObjectiveIndex: tracker.Index(),
		CreatedAt:             now,
		UpdatedAt:             now,
		Version:               1,
	}
	s.appendEntry(RoleTutor, introText(s), now)
	if err := validateState(s); err != nil {
		return nil, err
	}

	e.logger.Info("session started",
		zap.String("session_id", id),
		zap.String("learner_id", s.LearnerID),
		zap.Int("objectives", len(s.Objectives)))
	e.record(ctx, s, store.KindTransition, store.ProvenanceSystem, "started")

	if err := e.save(ctx, s); err != nil {
		return s.Clone(), err
	}
	return s.Clone(), nil
}

// Resume reopens a session, running interruption detection once. An
// interrupted session gets a resumption summary appended and carries the
// interruption context into the next model prompt.
func (e *Engine) Resume(ctx context.Context, id string) (*ResumeResult, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	s, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Completed() {
		return &ResumeResult{State: s.Clone(), Summary: BuildSummary(s)}, nil
	}

	now := e.now()
	det := interruption.Detect(s.LastMessageAt, now, e.cfg.InterruptionThreshold)
	if det.Anomaly != "" {
		e.logger.Warn("interruption detection anomaly",
			zap.String("session_id", id), zap.String("reason", det.Anomaly))
		e.record(ctx, s, store.KindAnomaly, store.ProvenanceSystem, det.Anomaly)
	}
	if !det.Interrupted {
		return &ResumeResult{State: s.Clone(), Gap: det.Gap}, nil
	}

	msg := resumptionText(s, det.Gap)
	next, err := applyTransition(s, now, func(n *State) error {
		n.InterruptionDetected = true
		n.InterruptionDuration = det.Gap
		n.InterruptionPending = true
		n.appendEntry(RoleTutor, msg, now)
		return nil
	})
	if err != nil {
		return nil, e.invariantFailure(ctx, s, err)
	}

	e.logger.Info("session resumed after interruption",
		zap.String("session_id", id), zap.Duration("gap", det.Gap))
	e.record(ctx, next, store.KindTransition, store.ProvenanceSystem,
		"resumed after "+interruption.FormatGap(det.Gap))

	res := &ResumeResult{State: next.Clone(), Interrupted: true, Gap: det.Gap, Message: msg}
	return res, e.save(ctx, next)
}

// Turn processes one learner input. Inputs starting with "/" go to the
// command channel and never reach the model. On a model failure the state
// is unchanged and a *TurnError is returned. On a save failure the result
// is returned together with a *PersistError.
func (e *Engine) Turn(ctx context.Context, id, input string) (*TurnResult, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	input = strings.TrimSpace(input)
	if cmd, ok := parseCommand(input); ok {
		return e.runCommand(ctx, id, cmd)
	}

	s, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.flushUnsaved(ctx, id); err != nil {
		return nil, err
	}
	if s.Completed() {
		e.settleCompletion(ctx, s)
		return nil, ErrSessionCompleted
	}
	if input == "" {
		return nil, errors.New("empty message")
	}

	learnerAt := e.now()
	candidate := s.Clone()
	candidate.appendEntry(RoleLearner, input, learnerAt)

	req := buildRequest(promptInput{
		State:     candidate,
		Narrative: e.narrative(ctx, s),
		Window:    e.cfg.TranscriptWindow,
	}, e.cfg.MaxTokens, e.cfg.Temperature)

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.TurnTimeout)
	callCtx = llm.WithSessionID(llm.WithPurpose(callCtx, llm.PurposeTutorTurn), id)
	resp, err := e.provider.Generate(callCtx, req)
	cancel()
	if err != nil {
		te := newTurnError(err)
		e.logger.Warn("tutor turn failed",
			zap.String("session_id", id),
			zap.String("kind", string(te.Kind)),
			zap.Bool("retryable", te.Retryable),
			zap.Error(err))
		e.record(ctx, s, store.KindIncident, store.ProvenanceSystem, fmt.Sprintf("%s: %v", te.Kind, err))
		return nil, te
	}

	parsed := control.Parse(resp.Text())
	return e.applyReply(ctx, s, input, learnerAt, parsed)
}

// applyReply applies one tutor reply and its directives.
func (e *Engine) applyReply(ctx context.Context, s *State, input string, learnerAt time.Time, parsed control.Result) (*TurnResult, error) {
	res := &TurnResult{}
	for _, b := range parsed.Unknown() {
		res.Anomalies = append(res.Anomalies, "malformed control block: "+b.Reason)
	}
	honored, ignored := parsed.Actionable(e.cfg.Policy)
	for _, b := range ignored {
		res.Anomalies = append(res.Anomalies, fmt.Sprintf("extra %s directive ignored (%s)", b.Kind, e.cfg.Policy))
	}

	reply := parsed.Display
	if reply == "" {
		reply = fallbackReply
	}

	now := e.now()
	next, err := applyTransition(s, now, func(n *State) error {
		n.appendEntry(RoleLearner, input, learnerAt)
		n.appendEntry(RoleTutor, reply, now)
		n.InterruptionPending = false

		tracker, err := n.Tracker()
		if err != nil {
			return err
		}
		if n.Phase == PhaseIntro {
			n.Phase = PhaseTeaching
			res.Transitions = append(res.Transitions, "intro -> teaching")
		}

		for _, b := range honored {
			switch b.Kind {
			case control.ObjectiveComplete:
				if n.Phase == PhaseRecap {
					res.Transitions = append(res.Transitions, "recap -> completed")
					n.Phase = PhaseCompleted
					n.Completion = completionFor(tracker, now, false)
					continue
				}
				if n.Phase != PhaseTeaching {
					continue
				}
				adv := tracker.Advance(objectives.ProvenanceAssessed, now)
				if adv.Completed != nil {
					res.Transitions = append(res.Transitions, "objective completed: "+adv.Completed.Description)
				}
				if adv.Next != nil {
					notice := transitionNotice(*adv.Next)
					n.appendEntry(RoleTutor, notice, now)
					res.Notices = append(res.Notices, notice)
				}
				if adv.Exhausted {
					n.Phase = PhaseRecap
					res.Transitions = append(res.Transitions, "teaching -> recap")
				}
			case control.SessionComplete:
				if n.Phase != PhaseRecap {
					res.Anomalies = append(res.Anomalies, "session_complete directive during "+string(n.Phase)+" ignored")
					continue
				}
				res.Transitions = append(res.Transitions, "recap -> completed")
				n.Phase = PhaseCompleted
				n.Completion = completionFor(tracker, now, false)
			}
		}

		if n.Phase == PhaseTeaching && tracker.Exhausted() {
			n.Phase = PhaseRecap
			res.Transitions = append(res.Transitions, "teaching -> recap")
		}
		n.Objectives = tracker.Objectives()
		n.CurrentObjectiveIndex = tracker.Index()
		return nil
	})
	if err != nil {
		return nil, e.invariantFailure(ctx, s, err)
	}

	res.State = next
	res.Completed = next.Completed()
	res.Reply = reply
	if next.DebugMode {
		res.Reply = reply + "\n\n" + debugFooter(next, parsed, res)
	}

	for _, a := range res.Anomalies {
		e.logger.Warn("control anomaly", zap.String("session_id", s.SessionID), zap.String("detail", a))
		e.record(ctx, next, store.KindAnomaly, store.ProvenanceModel, a)
	}
	for _, t := range res.Transitions {
		e.logger.Info("session transition",
			zap.String("session_id", s.SessionID),
			zap.String("phase", string(next.Phase)),
			zap.String("provenance", store.ProvenanceModel),
			zap.String("detail", t))
		e.record(ctx, next, store.KindTransition, store.ProvenanceModel, t)
	}

	saveErr := e.save(ctx, next)
	if res.Completed && saveErr == nil {
		res.State = e.updateProfiles(ctx, next)
	}
	res.State = res.State.Clone()
	return res, saveErr
}

// Get returns a copy of the current state.
func (e *Engine) Get(ctx context.Context, id string) (*State, error) {
	unlock := e.locks.lock(id)
	defer unlock()
	s, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// Summary returns the session summary.
func (e *Engine) Summary(ctx context.Context, id string) (*Summary, error) {
	s, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return BuildSummary(s), nil
}

// Progress returns objective progress for a session.
func (e *Engine) Progress(ctx context.Context, id string) (objectives.Progress, error) {
	s, err := e.Get(ctx, id)
	if err != nil {
		return objectives.Progress{}, err
	}
	return s.Progress(), nil
}

// RetrySave re-attempts the write of a state whose save failed. It is a
// no-op when nothing is pending.
func (e *Engine) RetrySave(ctx context.Context, id string) error {
	unlock := e.locks.lock(id)
	defer unlock()
	if err := e.flushUnsaved(ctx, id); err != nil {
		return err
	}
	s, err := e.load(ctx, id)
	if err != nil {
		return err
	}
	e.settleCompletion(ctx, s)
	return nil
}

// UpdateProfiles runs the profile pipeline for a completed session whose
// update has not run yet.
func (e *Engine) UpdateProfiles(ctx context.Context, id string) (*State, error) {
	unlock := e.locks.lock(id)
	defer unlock()
	s, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.Completed() {
		return nil, fmt.Errorf("session %s is not completed", id)
	}
	if s.ProfilesUpdated {
		return s.Clone(), nil
	}
	return e.updateProfiles(ctx, s).Clone(), nil
}

// load returns the in-memory unsaved state if one exists, else the stored one.
func (e *Engine) load(ctx context.Context, id string) (*State, error) {
	e.mu.Lock()
	s, ok := e.unsaved[id]
	e.mu.Unlock()
	if ok {
		return s, nil
	}
	return e.store.Load(ctx, id)
}

func (e *Engine) save(ctx context.Context, s *State) error {
	if err := e.store.Save(ctx, s); err != nil {
		e.mu.Lock()
		e.unsaved[s.SessionID] = s
		e.mu.Unlock()
		e.logger.Error("session save failed",
			zap.String("session_id", s.SessionID), zap.Int("version", s.Version), zap.Error(err))
		return &PersistError{SessionID: s.SessionID, Version: s.Version, Err: err}
	}
	e.mu.Lock()
	delete(e.unsaved, s.SessionID)
	e.mu.Unlock()
	return nil
}

func (e *Engine) flushUnsaved(ctx context.Context, id string) error {
	e.mu.Lock()
	s, ok := e.unsaved[id]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	return e.save(ctx, s)
}

func (e *Engine) narrative(ctx context.Context, s *State) string {
	if e.profiles == nil || s.LearnerID == "" {
		return ""
	}
	text, err := e.profiles.Narrative(ctx, s.LearnerID, s.Topic)
	if err != nil {
		e.logger.Warn("load learner profile", zap.String("session_id", s.SessionID), zap.Error(err))
		return ""
	}
	return text
}

// updateProfiles runs the profile pipeline for a freshly completed session
// and marks it done. Failures are logged and recorded; the session stays
// completed either way. Returns the latest state.
// settleCompletion runs the profile update a completed session still owes.
// It covers completions whose save failed and was later flushed, since the
// completing turn only updates profiles after a successful save.
func (e *Engine) settleCompletion(ctx context.Context, s *State) *State {
	if !s.Completed() || s.ProfilesUpdated {
		return s
	}
	return e.updateProfiles(ctx, s)
}

func (e *Engine) updateProfiles(ctx context.Context, s *State) *State {
	if s.ProfilesUpdated || e.profiles == nil || s.LearnerID == "" {
		return s
	}

	lines := make([]profile.Line, 0, len(s.Transcript))
	for _, t := range s.Transcript {
		lines = append(lines, profile.Line{Role: string(t.Role), Text: t.Text})
	}

	pctx, cancel := context.WithTimeout(ctx, e.cfg.ProfileTimeout)
	pctx = llm.WithSessionID(pctx, s.SessionID)
	out, err := e.profiles.Update(pctx, s.LearnerID, s.Topic, lines)
	cancel()
	if err != nil {
		e.logger.Error("profile update failed", zap.String("session_id", s.SessionID), zap.Error(err))
		e.record(ctx, s, store.KindIncident, store.ProvenanceSystem, "profile update failed: "+err.Error())
		return s
	}
	e.record(ctx, s, store.KindProfile, store.ProvenanceModel, out.String())

	next, err := applyTransition(s, e.now(), func(n *State) error {
		n.ProfilesUpdated = true
		return nil
	})
	if err != nil {
		e.invariantFailure(ctx, s, err)
		return s
	}
	// A failed save keeps next in the unsaved set for RetrySave.
	_ = e.save(ctx, next)
	return next
}

func (e *Engine) invariantFailure(ctx context.Context, s *State, err error) error {
	e.logger.Error("transition rejected", zap.String("session_id", s.SessionID), zap.Error(err))
	e.record(ctx, s, store.KindAnomaly, store.ProvenanceSystem, err.Error())
	return err
}

// record appends an audit event. Failures are logged, never returned.
func (e *Engine) record(ctx context.Context, s *State, kind, provenance, detail string) {
	if e.events == nil {
		return
	}
	err := e.events.AppendSessionEvent(context.WithoutCancel(ctx), store.SessionEventData{
		SessionID:  s.SessionID,
		Kind:       kind,
		Provenance: provenance,
		Phase:      string(s.Phase),
		Detail:     detail,
	})
	if err != nil {
		e.logger.Warn("record session event", zap.String("session_id", s.SessionID), zap.String("kind", kind), zap.Error(err))
	}
}

func debugFooter(s *State, parsed control.Result, res *TurnResult) string {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "debug: phase=%s objective=%d/%d version=%d\n", s.Phase, s.CurrentObjectiveIndex, len(s.Objectives), s.Version)
	for _, blk := range parsed.Blocks {
		fmt.Fprintf(&b, "debug: block %s %s\n", blk.Kind, strings.TrimSpace(blk.Raw))
	}
	for _, t := range res.Transitions {
		fmt.Fprintf(&b, "debug: transition %s\n", t)
	}
	for _, a := range res.Anomalies {
		fmt.Fprintf(&b, "debug: anomaly %s\n", a)
	}
	return strings.TrimRight(b.String(), "\n")
}
