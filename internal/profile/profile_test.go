package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/abhisek/autodidact/internal/llm"
	"github.com/abhisek/autodidact/internal/store"
)

func TestMain(m *testing.M) {
	// genai, imported through internal/llm, starts an opencensus worker at init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func confirmed(doc *Document, field, value string, conf float64) {
	doc.Fields[field] = Field{Status: Confirmed, Value: value, Confidence: conf, Evidence: "seen earlier"}
}

func TestNewDocument(t *testing.T) {
	doc := NewDocument(ScopeTopic, "ada", "linear equations")
	assert.Equal(t, "linear equations", doc.Topic)
	assert.Len(t, doc.Fields, len(FieldNames(ScopeTopic)))
	for name, f := range doc.Fields {
		assert.Equal(t, Unconfirmed, f.Status, name)
		assert.Equal(t, Placeholder, f.Value, name)
	}
	assert.Equal(t, "low", doc.ConfidenceLevel())

	generic := NewDocument(ScopeGeneric, "ada", "ignored")
	assert.Empty(t, generic.Topic)
	assert.Contains(t, generic.Fields, "pacing_preference")
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(*Document)
		update      fieldUpdate
		wantChanged bool
		wantValue   string
		wantReason  string
	}{
		{
			name:        "unconfirmed becomes confirmed",
			update:      fieldUpdate{Field: "pacing_preference", Value: "Prefers small steps", Confidence: 0.8, Evidence: "asked to slow down twice"},
			wantChanged: true,
			wantValue:   "Prefers small steps",
		},
		{
			name:       "unknown field",
			update:     fieldUpdate{Field: "favourite_colour", Value: "blue", Confidence: 0.9, Evidence: "said so"},
			wantValue:  Placeholder,
			wantReason: "unknown field",
		},
		{
			name:       "placeholder value",
			update:     fieldUpdate{Field: "pacing_preference", Value: "To be determined", Confidence: 0.9, Evidence: "x"},
			wantValue:  Placeholder,
			wantReason: "empty value",
		},
		{
			name:       "missing evidence",
			update:     fieldUpdate{Field: "pacing_preference", Value: "fast", Confidence: 0.9},
			wantValue:  Placeholder,
			wantReason: "missing evidence",
		},
		{
			name:       "low confidence",
			update:     fieldUpdate{Field: "pacing_preference", Value: "fast", Confidence: 0.5, Evidence: "x"},
			wantValue:  Placeholder,
			wantReason: "below",
		},
		{
			name:       "confirmed keeps value against weaker update",
			setup:      func(d *Document) { confirmed(d, "pacing_preference", "slow", 0.9) },
			update:     fieldUpdate{Field: "pacing_preference", Value: "fast", Confidence: 0.7, Evidence: "x"},
			wantValue:  "slow",
			wantReason: "below confirmed",
		},
		{
			name:        "confirmed replaced by equal confidence",
			setup:       func(d *Document) { confirmed(d, "pacing_preference", "slow", 0.7) },
			update:      fieldUpdate{Field: "pacing_preference", Value: "moderate", Confidence: 0.7, Evidence: "sped up later"},
			wantChanged: true,
			wantValue:   "moderate",
		},
		{
			name:      "identical value is no change",
			setup:     func(d *Document) { confirmed(d, "pacing_preference", "slow", 0.7) },
			update:    fieldUpdate{Field: "pacing_preference", Value: "slow", Confidence: 0.95, Evidence: "again"},
			wantValue: "slow",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := NewDocument(ScopeGeneric, "ada", "")
			if tt.setup != nil {
				tt.setup(doc)
			}
			before := doc.Clone()

			res := merge(doc, updateResponse{Updates: []fieldUpdate{tt.update}}, DefaultMinConfidence, now)

			assert.Equal(t, before, doc, "input document must not be modified")
			if !tt.wantChanged {
				assert.Nil(t, res.Doc)
				field := tt.update.Field
				if knownField(ScopeGeneric, field) {
					assert.Equal(t, tt.wantValue, doc.Fields[field].Value)
				}
			} else {
				require.NotNil(t, res.Doc)
				f := res.Doc.Fields[tt.update.Field]
				assert.Equal(t, Confirmed, f.Status)
				assert.Equal(t, tt.wantValue, f.Value)
				assert.Equal(t, before.SessionsAnalyzed+1, res.Doc.SessionsAnalyzed)
				assert.Equal(t, before.Version+1, res.Doc.Version)
				assert.True(t, res.Doc.UpdatedAt.Equal(now))
			}
			if tt.wantReason != "" {
				require.Len(t, res.Rejected, 1)
				assert.Contains(t, res.Rejected[0].Reason, tt.wantReason)
			}
		})
	}
}

func TestMerge_NoChangeFlag(t *testing.T) {
	doc := NewDocument(ScopeGeneric, "ada", "")
	res := merge(doc, updateResponse{
		NoChange: true,
		Updates:  []fieldUpdate{{Field: "pacing_preference", Value: "fast", Confidence: 0.9, Evidence: "x"}},
	}, DefaultMinConfidence, now)
	assert.Nil(t, res.Doc)
}

func TestMerge_NeverDowngrades(t *testing.T) {
	doc := NewDocument(ScopeGeneric, "ada", "")
	confirmed(doc, "instruction_style", "Socratic questioning", 0.8)

	for _, v := range []string{"", "to be determined", "unknown", "n/a"} {
		res := merge(doc, updateResponse{Updates: []fieldUpdate{
			{Field: "instruction_style", Value: v, Confidence: 1, Evidence: "x"},
		}}, DefaultMinConfidence, now)
		assert.Nil(t, res.Doc, "value %q", v)
	}
	assert.Equal(t, Confirmed, doc.Fields["instruction_style"].Status)
}

// scopedReplies answers each profile scope with a fixed reply.
func scopedReplies(generic, topic string) func(llm.Request) llm.MockResponse {
	return func(req llm.Request) llm.MockResponse {
		if req.Schema == nil {
			return llm.ErrorResponse(errors.New("schema expected"))
		}
		if strings.Contains(req.Schema.Name, string(ScopeTopic)) {
			return llm.TextResponse(topic)
		}
		return llm.TextResponse(generic)
	}
}

const (
	genericReply = `{"no_change": false, "updates": [
		{"field": "pacing_preference", "value": "Prefers short steps with a check after each", "confidence": 0.8, "evidence": "Asked 'can we go slower?'"},
		{"field": "interest_areas", "value": "football", "confidence": 0.4, "evidence": "mentioned once"}
	]}`
	topicReply = `{"no_change": false, "updates": [
		{"field": "specific_concepts_mastered", "value": "Slope as rise over run", "confidence": 0.9, "evidence": "Computed three slopes correctly"}
	]}`
)

var transcript = []Line{
	{Role: "tutor", Text: "What is the slope between (0,0) and (2,4)?"},
	{Role: "learner", Text: "Can we go slower? Is it 2?"},
	{Role: "tutor", Text: "Yes! Rise 4 over run 2."},
}

func TestPipeline_UpdateAndIdempotence(t *testing.T) {
	mock := llm.NewMockProvider()
	mock.Fallback = scopedReplies(genericReply, topicReply)
	p := NewPipeline(mock, DefaultConfig(), nil)
	p.now = func() time.Time { return now }

	generic := NewDocument(ScopeGeneric, "ada", "")
	topic := NewDocument(ScopeTopic, "ada", "linear equations")

	out, err := p.Update(context.Background(), transcript, generic, topic)
	require.NoError(t, err)
	require.NotNil(t, out.Generic)
	require.NotNil(t, out.Topic)
	assert.Equal(t, []string{"pacing_preference"}, out.GenericChanges)
	assert.Equal(t, []string{"specific_concepts_mastered"}, out.TopicChanges)
	assert.Len(t, out.Rejected, 1)
	assert.Equal(t, 1, out.Generic.SessionsAnalyzed)
	assert.Equal(t, 2, mock.CallCount())

	// Same transcript, same replies: nothing changes.
	again, err := p.Update(context.Background(), transcript, out.Generic, out.Topic)
	require.NoError(t, err)
	assert.Nil(t, again.Generic)
	assert.Nil(t, again.Topic)
	assert.False(t, again.Changed())
	assert.Equal(t, "generic: no change; topic: no change", again.String())
}

func TestPipeline_RequestsCarryPurposeSchemas(t *testing.T) {
	mock := llm.NewMockProvider()
	mock.Fallback = scopedReplies(`{"no_change": true, "updates": []}`, `{"no_change": true, "updates": []}`)
	p := NewPipeline(mock, DefaultConfig(), nil)

	_, err := p.Update(context.Background(), transcript,
		NewDocument(ScopeGeneric, "ada", ""), NewDocument(ScopeTopic, "ada", "t"))
	require.NoError(t, err)

	names := map[string]bool{}
	for _, c := range mock.Calls {
		require.NotNil(t, c.Schema)
		names[c.Schema.Name] = true
		assert.Contains(t, c.Messages[0].Content, "Can we go slower?")
	}
	assert.Equal(t, map[string]bool{"profile-generic-updates": true, "profile-topic-updates": true}, names)
}

func TestPipeline_FailureReturnsError(t *testing.T) {
	mock := llm.NewMockProvider()
	mock.Fallback = func(req llm.Request) llm.MockResponse {
		if strings.Contains(req.Schema.Name, "topic") {
			return llm.ErrorResponse(&llm.ErrProviderUnavailable{})
		}
		return llm.TextResponse(genericReply)
	}
	p := NewPipeline(mock, DefaultConfig(), nil)

	_, err := p.Update(context.Background(), transcript,
		NewDocument(ScopeGeneric, "ada", ""), NewDocument(ScopeTopic, "ada", "t"))
	require.Error(t, err)
	var unavail *llm.ErrProviderUnavailable
	assert.True(t, errors.As(err, &unavail))
}

func TestPipeline_SchemaViolation(t *testing.T) {
	mock := llm.NewMockProvider()
	mock.Fallback = scopedReplies(`{"updates": "nope"}`, topicReply)
	p := NewPipeline(mock, DefaultConfig(), nil)

	_, err := p.Update(context.Background(), transcript,
		NewDocument(ScopeGeneric, "ada", ""), NewDocument(ScopeTopic, "ada", "t"))
	var inv *llm.ErrInvalidResponse
	require.True(t, errors.As(err, &inv), "got %v", err)
}

func TestNarrative(t *testing.T) {
	generic := NewDocument(ScopeGeneric, "ada", "")
	topic := NewDocument(ScopeTopic, "ada", "fractions")
	assert.Empty(t, Narrative(generic, topic))

	confirmed(generic, "pacing_preference", "slow and steady", 0.8)
	confirmed(topic, "recurring_errors", "adds denominators", 0.7)
	generic.Fields["interest_areas"] = Field{Status: Unconfirmed, Value: "music"}

	got := Narrative(generic, topic)
	assert.Contains(t, got, "- Pacing preference: slow and steady")
	assert.Contains(t, got, "About this learner and fractions:")
	assert.Contains(t, got, "- Recurring errors: adds denominators")
	assert.NotContains(t, got, "music")
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRepoStore_RoundTripAndPrune(t *testing.T) {
	ctx := context.Background()
	rs := NewRepoStore(openStore(t).ProfileRepo(), 2)

	got, err := rs.LoadTopic(ctx, "ada", "fractions")
	require.NoError(t, err)
	assert.Nil(t, got)

	doc := NewDocument(ScopeTopic, "ada", "fractions")
	for i := 1; i <= 3; i++ {
		doc = doc.Clone()
		doc.Version = i
		confirmed(doc, "interest_level", fmt.Sprintf("level %d", i), 0.8)
		require.NoError(t, rs.SaveTopic(ctx, doc))
	}

	latest, err := rs.LoadTopic(ctx, "ada", "fractions")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 3, latest.Version)
	assert.Equal(t, "level 3", latest.Fields["interest_level"].Value)

	hist, err := rs.History(ctx, "ada", ScopeTopic, "fractions", 0)
	require.NoError(t, err)
	assert.Len(t, hist, 2)

	other, err := rs.LoadTopic(ctx, "ada", "decimals")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestService_UpdateSavesChangedDocuments(t *testing.T) {
	ctx := context.Background()
	rs := NewRepoStore(openStore(t).ProfileRepo(), 10)
	mock := llm.NewMockProvider()
	mock.Fallback = scopedReplies(genericReply, `{"no_change": true, "updates": []}`)
	svc := NewService(NewPipeline(mock, DefaultConfig(), nil), rs, nil)

	out, err := svc.Update(ctx, "ada", "slopes", transcript)
	require.NoError(t, err)
	assert.NotNil(t, out.Generic)
	assert.Nil(t, out.Topic)

	generic, err := rs.LoadGeneric(ctx, "ada")
	require.NoError(t, err)
	require.NotNil(t, generic)
	assert.Equal(t, Confirmed, generic.Fields["pacing_preference"].Status)

	topic, err := rs.LoadTopic(ctx, "ada", "slopes")
	require.NoError(t, err)
	assert.Nil(t, topic, "unchanged topic document is not saved")

	narr, err := svc.Narrative(ctx, "ada", "slopes")
	require.NoError(t, err)
	assert.Contains(t, narr, "Prefers short steps")
}

func TestDocumentJSONKeepsUnknownFieldsOut(t *testing.T) {
	raw, err := json.Marshal(NewDocument(ScopeGeneric, "ada", ""))
	require.NoError(t, err)
	doc, err := decodeDocument(raw)
	require.NoError(t, err)
	assert.Len(t, doc.Fields, len(FieldNames(ScopeGeneric)))
}
