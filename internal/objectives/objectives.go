// Package objectives tracks the ordered learning objectives of one
// tutoring session.
package objectives

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ForcedScore is the score recorded for objectives completed by an
// operator command rather than assessed by the tutor.
const ForcedScore = 0.85

// AssessedScore is the score recorded for objectives the tutor assessed.
const AssessedScore = 1.0

// Status is an objective's position in the tracker lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCurrent   Status = "current"
	StatusCompleted Status = "completed"
)

// Provenance records how an objective was completed.
type Provenance string

const (
	ProvenanceNone     Provenance = ""
	ProvenanceAssessed Provenance = "assessed"
	ProvenanceForced   Provenance = "forced"
)

// ErrInvalid is returned when a tracker's objectives and index disagree.
var ErrInvalid = errors.New("objectives: invalid tracker state")

// Objective is one learning goal within a session.
type Objective struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Provenance  Provenance `json:"provenance,omitempty"`
	Score       float64    `json:"score,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Tracker owns the objective list and the index of the current one.
// Index equals len(Objectives) once every objective is completed.
type Tracker struct {
	items []Objective
	index int
}

// Advancement is the outcome of one Advance call.
type Advancement struct {
	// Completed is the objective that was just completed, nil on a no-op.
	Completed *Objective
	// Next is the newly current objective, nil when none remain.
	Next *Objective
	// Exhausted is true when no objective is current after the call.
	Exhausted bool
}

// Progress summarizes a tracker for prompts and summaries.
type Progress struct {
	Completed int
	Total     int
	Remaining []string
	Forced    int
}

// Percent returns completion as a whole percentage. An empty tracker is
// fully complete.
func (p Progress) Percent() int {
	if p.Total == 0 {
		return 100
	}
	return p.Completed * 100 / p.Total
}

// New builds a tracker from descriptions in order. Blank descriptions are
// skipped. The first objective becomes current.
func New(descriptions []string) *Tracker {
	t := &Tracker{}
	for _, d := range descriptions {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		t.items = append(t.items, Objective{
			ID:          fmt.Sprintf("obj-%d", len(t.items)+1),
			Description: d,
			Status:      StatusPending,
		})
	}
	if len(t.items) > 0 {
		t.items[0].Status = StatusCurrent
	}
	return t
}

// Restore rebuilds a tracker from persisted objectives and index.
func Restore(items []Objective, index int) (*Tracker, error) {
	t := &Tracker{items: append([]Objective(nil), items...), index: index}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Objectives returns a copy of the objective list.
func (t *Tracker) Objectives() []Objective {
	out := make([]Objective, len(t.items))
	for i, o := range t.items {
		out[i] = o.clone()
	}
	return out
}

// Index returns the current objective index.
func (t *Tracker) Index() int { return t.index }

// Len returns the number of objectives.
func (t *Tracker) Len() int { return len(t.items) }

// Exhausted reports whether every objective is completed.
func (t *Tracker) Exhausted() bool { return t.index >= len(t.items) }

// Current returns the current objective, or nil when exhausted.
func (t *Tracker) Current() *Objective {
	if t.Exhausted() {
		return nil
	}
	o := t.items[t.index].clone()
	return &o
}

// Advance completes the current objective with the given provenance and
// makes the next one current. Past the end it is a no-op that reports
// exhaustion.
func (t *Tracker) Advance(p Provenance, at time.Time) Advancement {
	if t.Exhausted() {
		return Advancement{Exhausted: true}
	}

	t.complete(t.index, p, at)
	done := t.items[t.index].clone()
	t.index++

	adv := Advancement{Completed: &done}
	if t.Exhausted() {
		adv.Exhausted = true
		return adv
	}
	t.items[t.index].Status = StatusCurrent
	next := t.items[t.index].clone()
	adv.Next = &next
	return adv
}

// ForceCompleteAll marks every remaining objective completed with forced
// provenance and returns how many were changed.
func (t *Tracker) ForceCompleteAll(at time.Time) int {
	n := 0
	for i := t.index; i < len(t.items); i++ {
		t.complete(i, ProvenanceForced, at)
		n++
	}
	t.index = len(t.items)
	return n
}

// Progress reports completion counts and the remaining descriptions.
func (t *Tracker) Progress() Progress {
	p := Progress{Total: len(t.items)}
	for _, o := range t.items {
		if o.Status == StatusCompleted {
			p.Completed++
			if o.Provenance == ProvenanceForced {
				p.Forced++
			}
			continue
		}
		p.Remaining = append(p.Remaining, o.Description)
	}
	return p
}

// Validate checks that objectives before the index are completed, the one
// at the index is current and the rest are pending.
func (t *Tracker) Validate() error {
	if t.index < 0 || t.index > len(t.items) {
		return fmt.Errorf("%w: index %d out of range [0,%d]", ErrInvalid, t.index, len(t.items))
	}
	for i, o := range t.items {
		var want Status
		switch {
		case i < t.index:
			want = StatusCompleted
		case i == t.index:
			want = StatusCurrent
		default:
			want = StatusPending
		}
		if o.Status != want {
			return fmt.Errorf("%w: objective %d (%s) is %s, want %s", ErrInvalid, i, o.ID, o.Status, want)
		}
		if o.Status == StatusCompleted && o.Provenance == ProvenanceNone {
			return fmt.Errorf("%w: objective %d completed without provenance", ErrInvalid, i)
		}
	}
	return nil
}

func (t *Tracker) complete(i int, p Provenance, at time.Time) {
	if p == ProvenanceNone {
		p = ProvenanceAssessed
	}
	ts := at.UTC()
	o := &t.items[i]
	o.Status = StatusCompleted
	o.Provenance = p
	o.CompletedAt = &ts
	o.Score = AssessedScore
	if p == ProvenanceForced {
		o.Score = ForcedScore
	}
}

func (o Objective) clone() Objective {
	if o.CompletedAt != nil {
		ts := *o.CompletedAt
		o.CompletedAt = &ts
	}
	return o
}
