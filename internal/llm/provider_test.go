package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockProvider_FIFO(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Content: json.RawMessage("Welcome! Let's begin."), Usage: Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}},
		TextResponse("Next question."),
	)

	resp1, err := mock.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "first"}}})
	require.NoError(t, err)
	assert.Equal(t, "Welcome! Let's begin.", resp1.Text())
	assert.Equal(t, 10, resp1.Usage.InputTokens)
	assert.Equal(t, "end", resp1.StopReason)

	resp2, err := mock.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "second"}}})
	require.NoError(t, err)
	assert.Equal(t, "Next question.", resp2.Text())
}

func TestMockProvider_EmptyQueueReturnsError(t *testing.T) {
	mock := NewMockProvider()
	_, err := mock.Generate(context.Background(), Request{})

	var unavail *ErrProviderUnavailable
	require.ErrorAs(t, err, &unavail)
}

func TestMockProvider_Fallback(t *testing.T) {
	mock := NewMockProvider()
	mock.Fallback = func(req Request) MockResponse {
		return TextResponse(fmt.Sprintf("echo: %s", req.Messages[len(req.Messages)-1].Content))
	}

	resp, err := mock.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", resp.Text())
}

func TestMockProvider_ValidatesSchema(t *testing.T) {
	schema := &Schema{
		Name:       "mock-validate-test",
		Definition: map[string]any{"type": "object", "required": []any{"no_change"}},
	}
	mock := NewMockProvider(TextResponse(`{"updates":[]}`))

	_, err := mock.Generate(context.Background(), Request{Schema: schema})
	var inv *ErrInvalidResponse
	require.ErrorAs(t, err, &inv)
}

func TestMockProvider_RecordsCalls(t *testing.T) {
	mock := NewMockProvider(TextResponse("ok"))

	_, err := mock.Generate(context.Background(), Request{
		System:   "sys",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, mock.CallCount())
	last, ok := mock.LastCall()
	require.True(t, ok)
	assert.Equal(t, "sys", last.System)
}

func TestMockProvider_CanceledContext(t *testing.T) {
	mock := NewMockProvider(TextResponse("too late"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mock.Generate(ctx, Request{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestContextLabels(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "unknown", PurposeFrom(ctx))
	assert.Equal(t, "", SessionIDFrom(ctx))

	ctx = WithSessionID(WithPurpose(ctx, PurposeTutorTurn), "s-1")
	assert.Equal(t, PurposeTutorTurn, PurposeFrom(ctx))
	assert.Equal(t, "s-1", SessionIDFrom(ctx))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantKind      ErrorKind
		wantRetryable bool
	}{
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), KindTimeout, true},
		{"wrapped deadline", &ErrProviderUnavailable{Err: context.DeadlineExceeded}, KindTimeout, true},
		{"canceled", context.Canceled, KindCanceled, true},
		{"rate limit", &ErrRateLimit{Err: errors.New("429")}, KindRateLimit, true},
		{"unavailable", &ErrProviderUnavailable{}, KindUnavailable, true},
		{"malformed", &ErrInvalidResponse{Err: errors.New("bad")}, KindMalformed, true},
		{"truncated", &ErrMaxTokensExceeded{}, KindTruncated, false},
		{"other", errors.New("boom"), KindUnknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, retryable := Classify(tt.err)
			assert.Equal(t, tt.wantKind, kind)
			assert.Equal(t, tt.wantRetryable, retryable)
		})
	}
}

func TestResponseText(t *testing.T) {
	var nilResp *Response
	assert.Equal(t, "", nilResp.Text())
	assert.Equal(t, "hi", (&Response{Content: json.RawMessage("  hi\n")}).Text())
	assert.True(t, (&Response{StopReason: "max_tokens"}).Truncated())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"anthropic without key", Config{Provider: "anthropic"}, true},
		{"anthropic with key", Config{Provider: "anthropic", Anthropic: AnthropicConfig{APIKey: "sk-test"}}, false},
		{"openrouter without key", Config{Provider: "openrouter"}, true},
		{"gemini with key", Config{Provider: "gemini", Gemini: GeminiConfig{APIKey: "k"}}, false},
		{"mock needs no key", Config{Provider: "mock"}, false},
		{"negative timeout", Config{Provider: "mock", Timeout: -1}, true},
		{"unknown provider", Config{Provider: "unknown"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolveConfig(t *testing.T) {
	for _, k := range []string{"GEMINI_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "OPENROUTER_API_KEY",
		"AUTODIDACT_LLM_PROVIDER", "AUTODIDACT_ANTHROPIC_API_KEY"} {
		t.Setenv(k, "")
	}

	_, err := ResolveConfig(DefaultConfig())
	require.Error(t, err, "no keys anywhere")

	t.Setenv("OPENAI_API_KEY", "sk-std")
	cfg, err := ResolveConfig(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "sk-std", cfg.OpenAI.APIKey)

	t.Setenv("AUTODIDACT_LLM_PROVIDER", "anthropic")
	t.Setenv("AUTODIDACT_ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("AUTODIDACT_LLM_TIMEOUT", "15s")
	cfg, err = ResolveConfig(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "sk-ant", cfg.Anthropic.APIKey)
	assert.Equal(t, "15s", cfg.Timeout.String())
}

func TestNewProvider_MockIsBare(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Provider: "mock"}, nil, nil)
	require.NoError(t, err)
	_, ok := p.(*MockProvider)
	assert.True(t, ok)
}
