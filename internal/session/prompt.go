package session

import (
	"fmt"
	"strings"

	"github.com/abhisek/autodidact/internal/interruption"
	"github.com/abhisek/autodidact/internal/llm"
)

const teachingPrompt = `You are a patient, encouraging one-on-one tutor. Teach the learner the current objective through short explanations and questions, one step at a time. Check understanding before moving on.

When, and only when, the learner has clearly demonstrated the current objective, end your reply with:
<control>{"objective_complete": true}</control>

Never emit the control block in the same reply where you introduce new material. Never mention the control block to the learner.`

const recapPrompt = `You are a patient, encouraging one-on-one tutor. Every objective of this session has been covered. Recap the key ideas briefly, ask one or two review questions, and answer any remaining questions.

When the learner has answered the recap satisfactorily or asks to finish, end your reply with:
<control>{"session_complete": true}</control>

Never mention the control block to the learner.`

// fallbackReply is shown when the model's reply is empty after the control
// markup is removed.
const fallbackReply = "Let's keep going. Could you tell me, in your own words, what you understand so far?"

// promptInput is everything the prompt builder reads from the state.
type promptInput struct {
	State     *State
	Narrative string
	Window    int
}

// buildRequest assembles the model request for the state's phase.
func buildRequest(in promptInput, maxTokens int, temperature float64) llm.Request {
	return llm.Request{
		System:      buildSystemPrompt(in),
		Messages:    transcriptWindow(in.State.Transcript, in.Window),
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

func buildSystemPrompt(in promptInput) string {
	s := in.State
	var b strings.Builder

	if s.Phase == PhaseRecap {
		b.WriteString(recapPrompt)
	} else {
		b.WriteString(teachingPrompt)
	}

	fmt.Fprintf(&b, "\n\nLesson: %s\n", s.NodeTitle)
	if s.Topic != "" && s.Topic != s.NodeTitle {
		fmt.Fprintf(&b, "Topic: %s\n", s.Topic)
	}

	p := s.Progress()
	fmt.Fprintf(&b, "Progress: %d of %d objectives completed\n", p.Completed, p.Total)

	if s.CurrentObjectiveIndex < len(s.Objectives) {
		fmt.Fprintf(&b, "\nCurrent objective: %s\n", s.Objectives[s.CurrentObjectiveIndex].Description)
	}
	if rest := upcoming(s); len(rest) > 0 {
		b.WriteString("\nUpcoming objectives (do not teach yet):\n")
		for _, d := range rest {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	}

	if s.Phase == PhaseRecap {
		b.WriteString("\nObjectives covered:\n")
		for _, o := range s.Objectives {
			fmt.Fprintf(&b, "- %s\n", o.Description)
		}
	}

	if in.Narrative != "" {
		b.WriteString("\nLearner profile:\n")
		b.WriteString(in.Narrative)
		b.WriteString("\n")
	}

	if s.InterruptionPending {
		fmt.Fprintf(&b, "\nThe learner has just returned after %s away. Briefly reconnect with where you left off before continuing.\n",
			interruption.FormatGap(s.InterruptionDuration))
	}

	return strings.TrimRight(b.String(), "\n")
}

// upcoming lists the objectives after the current one.
func upcoming(s *State) []string {
	var out []string
	for i := s.CurrentObjectiveIndex + 1; i < len(s.Objectives); i++ {
		out = append(out, s.Objectives[i].Description)
	}
	return out
}

// transcriptWindow converts the trailing window entries to model messages.
// The window never starts with a tutor message so the conversation opens
// on a user turn.
func transcriptWindow(entries []TranscriptEntry, window int) []llm.Message {
	if window > 0 && len(entries) > window {
		entries = entries[len(entries)-window:]
	}
	for len(entries) > 0 && entries[0].Role != RoleLearner {
		entries = entries[1:]
	}

	msgs := make([]llm.Message, 0, len(entries))
	for _, e := range entries {
		role := llm.RoleUser
		text := e.Text
		if e.Role == RoleTutor {
			role = llm.RoleAssistant
		}
		// Consecutive entries from the same side are merged.
		if n := len(msgs); n > 0 && msgs[n-1].Role == role {
			msgs[n-1].Content += "\n\n" + text
			continue
		}
		msgs = append(msgs, llm.Message{Role: role, Content: text})
	}
	return msgs
}
