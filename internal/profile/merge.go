package profile

import (
	"fmt"
	"strings"
	"time"
)

// DefaultMinConfidence is the confidence below which updates are discarded.
const DefaultMinConfidence = 0.6

type fieldUpdate struct {
	Field      string  `json:"field"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence"`
}

type updateResponse struct {
	NoChange bool          `json:"no_change"`
	Updates  []fieldUpdate `json:"updates"`
}

// Rejection explains why a proposed update was not applied.
type Rejection struct {
	Field  string
	Reason string
}

// mergeResult is the outcome of merging one model response into a document.
type mergeResult struct {
	// Doc is the replacement document, nil when nothing changed.
	Doc      *Document
	Changed  []string
	Rejected []Rejection
}

// merge applies resp to a copy of cur. A field moves from unconfirmed to
// confirmed, or from one confirmed value to another when the new
// confidence is at least the old one. Nothing ever returns to unconfirmed.
func merge(cur *Document, resp updateResponse, minConfidence float64, now time.Time) mergeResult {
	var res mergeResult
	if resp.NoChange {
		return res
	}

	next := cur.Clone()
	next.ensureFields()
	ts := now.UTC()

	for _, u := range resp.Updates {
		name := strings.TrimSpace(u.Field)
		value := strings.TrimSpace(u.Value)
		evidence := strings.TrimSpace(u.Evidence)

		reject := func(format string, args ...any) {
			res.Rejected = append(res.Rejected, Rejection{Field: name, Reason: fmt.Sprintf(format, args...)})
		}

		switch {
		case !knownField(cur.Scope, name):
			reject("unknown field")
			continue
		case isPlaceholder(value):
			reject("empty value")
			continue
		case evidence == "":
			reject("missing evidence")
			continue
		case u.Confidence < minConfidence:
			reject("confidence %.2f below %.2f", u.Confidence, minConfidence)
			continue
		}

		old := next.Fields[name]
		if old.Status == Confirmed {
			if old.Value == value {
				continue
			}
			if u.Confidence < old.Confidence {
				reject("confidence %.2f below confirmed %.2f", u.Confidence, old.Confidence)
				continue
			}
		}

		next.Fields[name] = Field{
			Status:     Confirmed,
			Value:      value,
			Confidence: u.Confidence,
			Evidence:   evidence,
			UpdatedAt:  &ts,
		}
		res.Changed = append(res.Changed, name)
	}

	if len(res.Changed) == 0 {
		return res
	}
	next.SessionsAnalyzed++
	next.UpdatedAt = ts
	next.Version++
	res.Doc = next
	return res
}
