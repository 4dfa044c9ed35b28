package profile

import (
	"fmt"
	"sort"
	"strings"
)

const genericSystemPrompt = `You maintain a learner profile describing how a person learns, independent of subject. Read a tutoring session transcript and propose updates to the profile.

Rules:
- Only propose an update when the transcript contains direct evidence for it. Quote or paraphrase that evidence.
- Prefer refining a confirmed value over replacing it. Do not restate a value that is already correct.
- Use a confidence below 0.6 for weak signals; they will be ignored.
- If the transcript reveals nothing new, set no_change to true and return no updates.`

const topicSystemPrompt = `You maintain a topic-specific learner profile describing what a person knows and how they learn one subject. Read a tutoring session transcript on that subject and propose updates to the profile.

Rules:
- Only propose an update when the transcript contains direct evidence for it. Quote or paraphrase that evidence.
- Prefer refining a confirmed value over replacing it. Do not restate a value that is already correct.
- Use a confidence below 0.6 for weak signals; they will be ignored.
- If the transcript reveals nothing new, set no_change to true and return no updates.`

// Line is one transcript message given to the pipeline.
type Line struct {
	Role string
	Text string
}

func systemPrompt(scope Scope) string {
	if scope == ScopeTopic {
		return topicSystemPrompt
	}
	return genericSystemPrompt
}

func buildUserMessage(doc *Document, transcript []Line) string {
	var b strings.Builder

	if doc.Scope == ScopeTopic {
		fmt.Fprintf(&b, "Topic: %s\n\n", doc.Topic)
	}
	fmt.Fprintf(&b, "Sessions analyzed so far: %d\n\n", doc.SessionsAnalyzed)

	b.WriteString("Current profile:\n")
	for _, sec := range Template(doc.Scope) {
		fmt.Fprintf(&b, "[%s]\n", sec.Name)
		for _, name := range sec.Fields {
			f := doc.Fields[name]
			if f.Status == Confirmed {
				fmt.Fprintf(&b, "%s (confirmed, confidence %.2f): %s\n", name, f.Confidence, f.Value)
			} else {
				fmt.Fprintf(&b, "%s (unconfirmed)\n", name)
			}
		}
	}

	b.WriteString("\nTranscript:\n")
	for _, l := range transcript {
		fmt.Fprintf(&b, "%s: %s\n", strings.ToUpper(l.Role), strings.TrimSpace(l.Text))
	}
	return strings.TrimRight(b.String(), "\n")
}

// sortedChanges is used for stable log and event output.
func sortedChanges(names []string) []string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	return out
}
