package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/abhisek/autodidact/internal/store"
)

type recordedEvents struct {
	mu     sync.Mutex
	events []store.LLMRequestEventData
	err    error
}

func (r *recordedEvents) AppendLLMRequest(_ context.Context, data store.LLMRequestEventData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, data)
	return r.err
}

func TestLoggingProvider_RecordsEvent(t *testing.T) {
	rec := &recordedEvents{}
	mock := NewMockProvider(MockResponse{
		Content: []byte("Good start."),
		Usage:   Usage{InputTokens: 12, OutputTokens: 3},
	})
	p := WithLogging(mock, "mock", rec, zap.NewNop())

	ctx := WithSessionID(WithPurpose(context.Background(), PurposeTutorTurn), "s-9")
	_, err := p.Generate(ctx, Request{
		System:   "be kind",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rec.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(rec.events))
	}
	e := rec.events[0]
	if e.Purpose != PurposeTutorTurn || e.SessionID != "s-9" || !e.Success {
		t.Fatalf("unexpected event %+v", e)
	}
	if e.InputTokens != 12 || e.ResponseBody != "Good start." {
		t.Fatalf("unexpected usage/body %+v", e)
	}
	if !strings.Contains(e.RequestBody, "[system]\nbe kind") || !strings.Contains(e.RequestBody, "[user]\nhello") {
		t.Fatalf("unexpected request body %q", e.RequestBody)
	}
}

func TestLoggingProvider_FailureLoggedAndRecorded(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	rec := &recordedEvents{err: errors.New("disk full")}
	mock := NewMockProvider(ErrorResponse(&ErrRateLimit{Err: errors.New("429")}))
	p := WithLogging(mock, "mock", rec, zap.New(core))

	_, err := p.Generate(context.Background(), Request{})
	var rl *ErrRateLimit
	if !errors.As(err, &rl) {
		t.Fatalf("expected the provider error to pass through, got %v", err)
	}

	if len(rec.events) != 1 || rec.events[0].Success || rec.events[0].ErrorMessage == "" {
		t.Fatalf("expected a failed event, got %+v", rec.events)
	}
	if logs.FilterMessage("llm request failed").Len() != 1 {
		t.Fatal("expected a warning for the failed request")
	}
	if logs.FilterMessage("failed to record LLM request event").Len() != 1 {
		t.Fatal("expected a warning for the failed event write")
	}
}
