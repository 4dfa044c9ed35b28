package profile

import (
	"fmt"
	"strings"
)

// Narrative renders the confirmed fields of both documents as compact text
// for a tutoring prompt. It returns "" when nothing is confirmed.
func Narrative(generic, topic *Document) string {
	var parts []string
	if s := render(generic, "How this learner learns"); s != "" {
		parts = append(parts, s)
	}
	if topic != nil {
		if s := render(topic, fmt.Sprintf("About this learner and %s", topic.Topic)); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

func render(doc *Document, heading string) string {
	if doc == nil {
		return ""
	}
	var lines []string
	for _, sec := range Template(doc.Scope) {
		for _, name := range sec.Fields {
			f, ok := doc.Fields[name]
			if !ok || f.Status != Confirmed || isPlaceholder(f.Value) {
				continue
			}
			lines = append(lines, fmt.Sprintf("- %s: %s", humanize(name), f.Value))
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return heading + ":\n" + strings.Join(lines, "\n")
}
