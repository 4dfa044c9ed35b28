// Package profile maintains learner profiles: a generic document about how
// a learner learns and one document per topic, revised by a model after
// each completed session.
package profile

import (
	"strings"
	"time"
)

// Scope selects the generic or the topic-specific profile.
type Scope string

const (
	ScopeGeneric Scope = "generic"
	ScopeTopic   Scope = "topic"
)

// FieldStatus is the confirmation state of a profile field.
type FieldStatus string

const (
	// Unconfirmed fields hold no observation yet.
	Unconfirmed FieldStatus = "unconfirmed"
	// Confirmed fields carry a value backed by evidence.
	Confirmed FieldStatus = "confirmed"
)

// Placeholder is the value of every unconfirmed field.
const Placeholder = "to be determined"

// Field is one observation about the learner.
type Field struct {
	Status     FieldStatus `json:"status" yaml:"status"`
	Value      string      `json:"value" yaml:"value"`
	Confidence float64     `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	Evidence   string      `json:"evidence,omitempty" yaml:"evidence,omitempty"`
	UpdatedAt  *time.Time  `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// Document is a complete profile for one scope.
type Document struct {
	Scope            Scope            `json:"scope" yaml:"scope"`
	LearnerID        string           `json:"learner_id" yaml:"learner_id"`
	Topic            string           `json:"topic,omitempty" yaml:"topic,omitempty"`
	Fields           map[string]Field `json:"fields" yaml:"fields"`
	SessionsAnalyzed int              `json:"sessions_analyzed" yaml:"sessions_analyzed"`
	UpdatedAt        time.Time        `json:"updated_at" yaml:"updated_at"`
	Version          int              `json:"version" yaml:"version"`
}

// Section groups related fields of a template.
type Section struct {
	Name   string
	Fields []string
}

var genericTemplate = []Section{
	{"learning_preferences", []string{"instruction_style", "example_preference", "hands_on_vs_theoretical", "pacing_preference", "feedback_frequency"}},
	{"strengths_and_needs", []string{"conceptual_strengths", "conceptual_needs", "metacognitive_strengths", "metacognitive_needs", "motivational_strengths", "motivational_needs"}},
	{"prior_knowledge_and_misconceptions", []string{"general_knowledge_areas", "common_misconceptions", "knowledge_gaps"}},
	{"barriers_and_supports", []string{"content_type_difficulties", "representation_difficulties", "effective_supports", "environmental_preferences"}},
	{"interests_and_engagement", []string{"engagement_drivers", "interest_areas", "motivating_factors", "demotivating_factors"}},
	{"psychological_needs", []string{"autonomy_preferences", "competence_indicators", "relatedness_needs"}},
	{"goal_orientations", []string{"mastery_vs_performance", "approach_vs_avoidant", "learning_goals"}},
}

var topicTemplate = []Section{
	{"topic_understanding", []string{"current_knowledge_level", "specific_concepts_mastered", "specific_concepts_struggling", "prerequisite_gaps"}},
	{"topic_specific_preferences", []string{"preferred_learning_approaches", "effective_examples", "preferred_representations", "successful_practice_methods"}},
	{"topic_misconceptions", []string{"identified_misconceptions", "recurring_errors", "conceptual_confusion_areas"}},
	{"topic_engagement", []string{"interest_level", "motivating_aspects", "challenging_aspects", "real_world_connections"}},
	{"learning_progression", []string{"mastered_learning_objectives", "current_focus_areas", "next_recommended_steps", "pace_observations"}},
}

// Template returns the field layout for scope.
func Template(scope Scope) []Section {
	if scope == ScopeTopic {
		return topicTemplate
	}
	return genericTemplate
}

// FieldNames returns every field of scope in template order.
func FieldNames(scope Scope) []string {
	var out []string
	for _, sec := range Template(scope) {
		out = append(out, sec.Fields...)
	}
	return out
}

func knownField(scope Scope, name string) bool {
	for _, sec := range Template(scope) {
		for _, f := range sec.Fields {
			if f == name {
				return true
			}
		}
	}
	return false
}

// NewDocument returns a document with every template field unconfirmed.
func NewDocument(scope Scope, learnerID, topic string) *Document {
	d := &Document{
		Scope:     scope,
		LearnerID: learnerID,
		Fields:    make(map[string]Field),
	}
	if scope == ScopeTopic {
		d.Topic = topic
	}
	for _, name := range FieldNames(scope) {
		d.Fields[name] = Field{Status: Unconfirmed, Value: Placeholder}
	}
	return d
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	c := *d
	c.Fields = make(map[string]Field, len(d.Fields))
	for k, f := range d.Fields {
		if f.UpdatedAt != nil {
			at := *f.UpdatedAt
			f.UpdatedAt = &at
		}
		c.Fields[k] = f
	}
	return &c
}

// ensureFields adds template fields missing from an older document.
func (d *Document) ensureFields() {
	if d.Fields == nil {
		d.Fields = make(map[string]Field)
	}
	for _, name := range FieldNames(d.Scope) {
		if _, ok := d.Fields[name]; !ok {
			d.Fields[name] = Field{Status: Unconfirmed, Value: Placeholder}
		}
	}
}

// ConfirmedCount returns the number of confirmed fields.
func (d *Document) ConfirmedCount() int {
	n := 0
	for _, f := range d.Fields {
		if f.Status == Confirmed {
			n++
		}
	}
	return n
}

// ConfidenceLevel summarizes how much of the document is confirmed.
func (d *Document) ConfidenceLevel() string {
	total := len(FieldNames(d.Scope))
	if total == 0 {
		return "low"
	}
	ratio := float64(d.ConfirmedCount()) / float64(total)
	switch {
	case ratio >= 0.6:
		return "high"
	case ratio >= 0.3:
		return "medium"
	default:
		return "low"
	}
}

// isPlaceholder reports whether v carries no information.
func isPlaceholder(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", strings.ToLower(Placeholder), "n/a", "na", "unknown", "none", "tbd", "not enough information":
		return true
	}
	return false
}

func humanize(name string) string {
	s := strings.ReplaceAll(name, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
