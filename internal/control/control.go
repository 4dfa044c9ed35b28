// Package control decodes the directive markup a tutor model embeds in its
// replies.
//
// Grammar (version 1):
//
//	<control>{"objective_complete": true, "session_complete": false, "version": "v1"}</control>
//
// Tags are case-insensitive and the payload may span lines. The payload is
// a flat JSON object; objective_complete and session_complete are
// booleans, version is an optional semantic version whose major must be
// v1. Other keys are ignored. Decoding never fails: anything malformed
// becomes an Unknown block carrying the reason.
package control

import (
	"regexp"
	"strings"
)

// Kind is the tagged variant of a decoded block.
type Kind int

const (
	// Unknown is a block that could not be decoded. Logged, never acted on.
	Unknown Kind = iota
	// ObjectiveComplete marks the current objective as met.
	ObjectiveComplete
	// SessionComplete asks to end the session.
	SessionComplete
	// Continue is a well-formed block whose flags are all false.
	Continue
)

func (k Kind) String() string {
	switch k {
	case ObjectiveComplete:
		return "objective_complete"
	case SessionComplete:
		return "session_complete"
	case Continue:
		return "continue"
	default:
		return "unknown"
	}
}

// Actionable reports whether the kind drives a transition.
func (k Kind) Actionable() bool {
	return k == ObjectiveComplete || k == SessionComplete
}

// Block is one decoded directive.
type Block struct {
	Kind Kind
	// Raw is the payload text between the tags, untrimmed.
	Raw string
	// Keys lists the recognized keys present in the payload, in grammar order.
	Keys []string
	// Reason explains why a block is Unknown.
	Reason string
}

// Result is the outcome of parsing one reply.
type Result struct {
	// Blocks in order of appearance. A payload with both flags set yields
	// an ObjectiveComplete followed by a SessionComplete.
	Blocks []Block
	// Display is the reply with all markup removed, fit for the learner.
	Display string
}

// Policy decides which actionable blocks of one reply are honored.
type Policy string

const (
	// FirstWins honors the first actionable block; later ones are anomalies.
	FirstWins Policy = "first-wins"
	// Sequential honors every actionable block in order.
	Sequential Policy = "sequential"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	return p == FirstWins || p == Sequential
}

var (
	blockRe      = regexp.MustCompile(`(?is)<control>(.*?)</control>`)
	openTagRe    = regexp.MustCompile(`(?i)<control>`)
	closeTagRe   = regexp.MustCompile(`(?i)</control>`)
	spacesRe     = regexp.MustCompile(`[ \t]+`)
	blankLinesRe = regexp.MustCompile(`\n\s*\n\s*\n+`)
)

// Parse extracts every control block from text and returns them with the
// cleaned display text. It is pure and deterministic.
func Parse(text string) Result {
	var res Result

	for _, m := range blockRe.FindAllStringSubmatch(text, -1) {
		res.Blocks = append(res.Blocks, decode(m[1])...)
	}
	rest := blockRe.ReplaceAllString(text, "")

	// An opening tag with no close swallows the remainder of the reply.
	if loc := openTagRe.FindStringIndex(rest); loc != nil {
		res.Blocks = append(res.Blocks, Block{
			Kind:   Unknown,
			Raw:    rest[loc[1]:],
			Reason: "unterminated control tag",
		})
		rest = rest[:loc[0]]
	}
	rest = closeTagRe.ReplaceAllString(rest, "")

	res.Display = clean(rest)
	return res
}

// Actionable splits the actionable blocks into those honored under policy
// and those reported as anomalies. Unknown and Continue blocks are in
// neither list.
func (r Result) Actionable(policy Policy) (honored, ignored []Block) {
	for _, b := range r.Blocks {
		if !b.Kind.Actionable() {
			continue
		}
		if policy == Sequential || len(honored) == 0 {
			honored = append(honored, b)
			continue
		}
		ignored = append(ignored, b)
	}
	return honored, ignored
}

// Unknown returns the blocks that failed to decode.
func (r Result) Unknown() []Block {
	var out []Block
	for _, b := range r.Blocks {
		if b.Kind == Unknown {
			out = append(out, b)
		}
	}
	return out
}

// Strip returns text with control markup removed, for rendering stored
// tutor replies.
func Strip(text string) string {
	return Parse(text).Display
}

func clean(s string) string {
	s = spacesRe.ReplaceAllString(s, " ")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
