package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/abhisek/autodidact/internal/objectives"
	"github.com/abhisek/autodidact/internal/store"
)

// Command is an operator command. Commands bypass the model.
type Command string

const (
	CmdCompleted  Command = "/completed"
	CmdNext       Command = "/next"
	CmdGotIt      Command = "/got_it"
	CmdUnderstood Command = "/understood"
	CmdSkip       Command = "/skip"
	CmdDebugMode  Command = "/debug_mode"
	CmdVerbose    Command = "/verbose"
	CmdStatus     Command = "/status"
	CmdHelp       Command = "/help"
	CmdDebug      Command = "/debug"
)

// HelpText lists the available commands.
const HelpText = `Commands:
  /completed                      finish the session now (objectives scored 85%)
  /next, /got_it, /understood, /skip
                                  mark the current objective complete
  /debug_mode, /verbose           toggle verbose replies with state details
  /status                         show session progress
  /help, /debug                   show this help`

// parseCommand reports whether input is addressed to the command channel
// and returns the normalized command word.
func parseCommand(input string) (Command, bool) {
	if !strings.HasPrefix(input, "/") {
		return "", false
	}
	word := strings.Fields(strings.ToLower(input))[0]
	return Command(word), true
}

// IsCommand reports whether input would be routed to the command channel.
func IsCommand(input string) bool {
	_, ok := parseCommand(strings.TrimSpace(input))
	return ok
}

func (e *Engine) runCommand(ctx context.Context, id string, cmd Command) (*TurnResult, error) {
	s, err := e.load(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return &TurnResult{Command: string(cmd), Reply: HelpText}, nil
	}
	if err != nil {
		return nil, err
	}
	if err := e.flushUnsaved(ctx, id); err != nil {
		return nil, err
	}
	s = e.settleCompletion(ctx, s)

	e.logger.Info("operator command", zap.String("session_id", id), zap.String("command", string(cmd)))
	e.record(ctx, s, store.KindCommand, store.ProvenanceOperator, string(cmd))

	res := &TurnResult{Command: string(cmd), State: s.Clone()}
	switch cmd {
	case CmdHelp, CmdDebug:
		res.Reply = HelpText
		return res, nil
	case CmdStatus:
		res.Reply = statusText(s)
		return res, nil
	case CmdCompleted:
		return e.forceCompleteSession(ctx, s, res)
	case CmdNext, CmdGotIt, CmdUnderstood, CmdSkip:
		return e.forceCompleteObjective(ctx, s, res)
	case CmdDebugMode, CmdVerbose:
		return e.toggleDebug(ctx, s, res)
	default:
		res.Reply = fmt.Sprintf("Unknown command %s.\n\n%s", cmd, HelpText)
		return res, nil
	}
}

func (e *Engine) forceCompleteSession(ctx context.Context, s *State, res *TurnResult) (*TurnResult, error) {
	if s.Completed() {
		res.Reply = "This session is already completed."
		return res, nil
	}

	now := e.now()
	from := s.Phase
	next, err := applyTransition(s, now, func(n *State) error {
		tracker, err := n.Tracker()
		if err != nil {
			return err
		}
		tracker.ForceCompleteAll(now)
		n.Objectives = tracker.Objectives()
		n.CurrentObjectiveIndex = tracker.Index()
		n.Phase = PhaseCompleted
		n.Completion = completionFor(tracker, now, true)
		return nil
	})
	if err != nil {
		return nil, e.invariantFailure(ctx, s, err)
	}

	t := fmt.Sprintf("%s -> completed", from)
	e.record(ctx, next, store.KindTransition, store.ProvenanceOperator, t)
	res.Transitions = []string{t}
	res.Completed = true
	res.State = next
	res.Reply = fmt.Sprintf("Session force-completed with a score of %d%%.", int(next.Completion.Score*100+0.5))

	if err := e.save(ctx, next); err != nil {
		res.State = next.Clone()
		return res, err
	}
	res.State = e.updateProfiles(ctx, next).Clone()
	return res, nil
}

func (e *Engine) forceCompleteObjective(ctx context.Context, s *State, res *TurnResult) (*TurnResult, error) {
	switch {
	case s.Completed():
		res.Reply = "This session is already completed."
		return res, nil
	case s.CurrentObjectiveIndex >= len(s.Objectives):
		res.Reply = "Every objective is already complete. Use /completed to finish the session."
		return res, nil
	}

	now := e.now()
	next, err := applyTransition(s, now, func(n *State) error {
		tracker, err := n.Tracker()
		if err != nil {
			return err
		}
		// Skipping from intro still passes through teaching.
		if n.Phase == PhaseIntro {
			n.Phase = PhaseTeaching
			res.Transitions = append(res.Transitions, "intro -> teaching")
		}
		adv := tracker.Advance(objectives.ProvenanceForced, now)
		res.Transitions = append(res.Transitions, "objective skipped: "+adv.Completed.Description)
		if adv.Next != nil {
			notice := transitionNotice(*adv.Next)
			n.appendEntry(RoleTutor, notice, now)
			res.Notices = append(res.Notices, notice)
			res.Reply = notice
		}
		if adv.Exhausted {
			res.Transitions = append(res.Transitions, string(n.Phase)+" -> recap")
			n.Phase = PhaseRecap
			res.Reply = "All objectives are complete. Send a message to start the recap, or use /completed to finish."
		}
		n.Objectives = tracker.Objectives()
		n.CurrentObjectiveIndex = tracker.Index()
		return nil
	})
	if err != nil {
		return nil, e.invariantFailure(ctx, s, err)
	}

	for _, t := range res.Transitions {
		e.record(ctx, next, store.KindTransition, store.ProvenanceOperator, t)
	}
	res.State = next.Clone()
	return res, e.save(ctx, next)
}

func (e *Engine) toggleDebug(ctx context.Context, s *State, res *TurnResult) (*TurnResult, error) {
	if s.Completed() {
		res.Reply = "This session is already completed."
		return res, nil
	}
	next, err := applyTransition(s, e.now(), func(n *State) error {
		n.DebugMode = !n.DebugMode
		return nil
	})
	if err != nil {
		return nil, e.invariantFailure(ctx, s, err)
	}
	res.State = next.Clone()
	res.Reply = "Verbose mode off."
	if next.DebugMode {
		res.Reply = "Verbose mode on. Replies will include state details."
	}
	return res, e.save(ctx, next)
}
